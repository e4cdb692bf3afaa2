package config

import (
	"fmt"
	"strings"

	"ytcollector/internal/textutil"
)

// Batch job naming. Kaggle rejects kernel slugs longer than
// MaxKernelNameLength at push time.
const (
	KernelNamePrefix    = "crongle-job"
	KernelRunIDLength   = 8
	MaxKernelNameLength = 50
)

// KernelName builds the kernel slug crongle-job-<job>-<run id prefix>.
func KernelName(jobName, runID string) string {
	short := strings.ReplaceAll(runID, "-", "")
	if len(short) > KernelRunIDLength {
		short = short[:KernelRunIDLength]
	}
	return textutil.Slug(fmt.Sprintf("%s-%s-%s", KernelNamePrefix, jobName, short))
}

func validateKernelName(stageName, jobName string) error {
	name := KernelName(jobName, strings.Repeat("0", KernelRunIDLength))
	if len(name) > MaxKernelNameLength {
		limit := MaxKernelNameLength - (len(name) - len(textutil.Slug(jobName)))
		return fmt.Errorf("stages.%s.job_name %q yields kernel name %q longer than %d characters (job_name allows at most %d)",
			stageName, jobName, name, MaxKernelNameLength, limit)
	}
	return nil
}
