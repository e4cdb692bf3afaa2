// Package jobtemplate renders batch job scripts from templates with {{name}}
// placeholders.
//
// Rendering is a pure function of the template text and the bindings: it
// touches no files, and the same inputs always produce byte-identical output.
// Every placeholder in the template must be bound, and every binding the
// template declares as required must carry a value; otherwise Render returns
// a *TemplateError and no output.
package jobtemplate
