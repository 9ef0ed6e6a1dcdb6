package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func AnalysisRecordKey(id uuid.UUID) string {
	return fmt.Sprintf("analysis:%s", id)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
