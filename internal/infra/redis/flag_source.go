package redis

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"haccp-training-service/internal/domain"
)

const flagsKey = "game:flags"

// FlagSource reads the gate switches from a Redis hash maintained by the
// operations side:
//
//	HSET game:flags trainingEnabled 1 qualifierOpen 0 finalOpen 0
//
// A missing field reads as false; a failed fetch surfaces as an error so the
// unlock engine can fail closed.
type FlagSource struct {
	client *redis.Client
}

func NewFlagSource(client *redis.Client) *FlagSource {
	return &FlagSource{client: client}
}

func (f *FlagSource) FetchFlags(ctx context.Context) (domain.FeatureFlags, error) {
	fields, err := f.client.HGetAll(ctx, flagsKey).Result()
	if err != nil {
		return domain.FeatureFlags{}, err
	}
	return domain.FeatureFlags{
		TrainingEnabled: truthy(fields["trainingEnabled"]),
		QualifierOpen:   truthy(fields["qualifierOpen"]),
		FinalOpen:       truthy(fields["finalOpen"]),
	}, nil
}

func truthy(raw string) bool {
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}
