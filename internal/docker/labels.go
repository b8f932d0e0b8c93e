package docker

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Label keys used for paramscan resources
const (
	LabelProject   = "paramscan.project"
	LabelJob       = "paramscan.job"
	LabelRunID     = "paramscan.run_id"
	LabelOutputDir = "paramscan.output.dir"
	LabelComponent = "paramscan.component"
	LabelRedisPort = "paramscan.redis.port"
	LabelRank      = "paramscan.rank"
)

// Component label values
const (
	ComponentRedis  = "redis"
	ComponentWorker = "worker"
)

// MaxJobLength keeps derived container names DNS-compatible.
const MaxJobLength = 40

var jobPattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// BuildLabels creates the standard label set for every resource of a launch.
// component may be empty for resources shared by the whole job (the network).
func BuildLabels(job, runID, outputDir, component string) map[string]string {
	labels := map[string]string{
		LabelProject:   "true",
		LabelJob:       job,
		LabelRunID:     runID,
		LabelOutputDir: outputDir,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// WorkerLabels is BuildLabels for one rank's container.
func WorkerLabels(job, runID, outputDir string, rank int) map[string]string {
	labels := BuildLabels(job, runID, outputDir, ComponentWorker)
	labels[LabelRank] = fmt.Sprintf("%d", rank)
	return labels
}

// GenerateRunID creates a new UUID for one launch.
func GenerateRunID() string {
	return uuid.New().String()
}

// GenerateJobID creates a job name for launches that do not supply one.
func GenerateJobID() string {
	return "scan-" + uuid.New().String()[:8]
}

// ValidateJob checks that a job ID can be embedded in container and network
// names: lowercase alphanumeric with inner hyphens.
func ValidateJob(job string) error {
	if job == "" {
		return fmt.Errorf("job ID cannot be empty")
	}

	if len(job) > MaxJobLength {
		return fmt.Errorf("job ID too long: %d characters (max: %d)", len(job), MaxJobLength)
	}

	if !jobPattern.MatchString(job) {
		return fmt.Errorf("invalid job ID '%s': must be lowercase alphanumeric with hyphens (not at start/end)", job)
	}

	return nil
}

// NetworkName returns the Docker network name for a job
func NetworkName(job string) string {
	return fmt.Sprintf("paramscan-network-%s", job)
}

// RedisContainerName returns the Redis container name for a job
func RedisContainerName(job string) string {
	return fmt.Sprintf("paramscan-redis-%s", job)
}

// WorkerContainerName returns the container name for one rank of a job
func WorkerContainerName(job string, rank int) string {
	return fmt.Sprintf("paramscan-worker-%s-%d", job, rank)
}
