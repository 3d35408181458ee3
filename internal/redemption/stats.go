package redemption

import (
	"context"
	"math"
	"time"

	"github.com/littlewriters/credits-service/internal/domain/credits"
	"github.com/littlewriters/credits-service/internal/storage"
)

// Reporter aggregates code and user counts for the admin dashboard. It is
// read-only and never caches: admin views expect freshness over speed.
type Reporter struct {
	users storage.UserStore
	codes storage.CodeStore
}

// NewReporter creates a statistics reporter.
func NewReporter(users storage.UserStore, codes storage.CodeStore) *Reporter {
	return &Reporter{users: users, codes: codes}
}

// UsageStatistics computes counts from current store state at call time.
// The usage rate is a percentage rounded to two decimals, zero when no codes
// exist.
func (r *Reporter) UsageStatistics(ctx context.Context) (credits.UsageStatistics, error) {
	totalUsers, err := r.users.CountUsers(ctx)
	if err != nil {
		return credits.UsageStatistics{}, err
	}

	totalCodes, err := r.codes.CountCodes(ctx)
	if err != nil {
		return credits.UsageStatistics{}, err
	}

	usedCodes, err := r.codes.CountUsedCodes(ctx)
	if err != nil {
		return credits.UsageStatistics{}, err
	}

	expiredCodes, err := r.codes.CountExpiredCodes(ctx, time.Now().UTC())
	if err != nil {
		return credits.UsageStatistics{}, err
	}

	totalIssued, err := r.codes.SumUsedCodeValues(ctx)
	if err != nil {
		return credits.UsageStatistics{}, err
	}

	rate := 0.0
	if totalCodes > 0 {
		rate = math.Round(float64(usedCodes)/float64(totalCodes)*100*100) / 100
	}

	return credits.UsageStatistics{
		TotalUsers:         totalUsers,
		TotalCodes:         totalCodes,
		UsedCodes:          usedCodes,
		UnusedCodes:        totalCodes - usedCodes,
		ExpiredCodes:       expiredCodes,
		TotalCreditsIssued: totalIssued,
		UsageRate:          rate,
	}, nil
}
