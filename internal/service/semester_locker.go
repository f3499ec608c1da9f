package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

type distributedLock interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// SemesterLocker guarantees at most one allocation writer per semester. The in-process map
// guards a single instance; the optional distributed lock guards several.
type SemesterLocker struct {
	remote distributedLock
	ttl    time.Duration
	logger *zap.Logger

	mu   sync.Mutex
	held map[string]string
}

// NewSemesterLocker builds a locker. remote may be nil.
func NewSemesterLocker(remote distributedLock, ttl time.Duration, logger *zap.Logger) *SemesterLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SemesterLocker{remote: remote, ttl: ttl, logger: logger, held: make(map[string]string)}
}

// Acquire takes the semester lock for owner and returns its release function.
func (l *SemesterLocker) Acquire(ctx context.Context, semesterID, owner string) (func(), error) {
	l.mu.Lock()
	if _, busy := l.held[semesterID]; busy {
		l.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrRunInProgress, "")
	}
	l.held[semesterID] = owner
	l.mu.Unlock()

	unlockLocal := func() {
		l.mu.Lock()
		if l.held[semesterID] == owner {
			delete(l.held, semesterID)
		}
		l.mu.Unlock()
	}

	if l.remote == nil {
		return unlockLocal, nil
	}

	key := semesterLockKey(semesterID)
	ok, err := l.remote.Acquire(ctx, key, owner, l.ttl)
	if err != nil {
		unlockLocal()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire semester lock")
	}
	if !ok {
		unlockLocal()
		return nil, appErrors.Clone(appErrors.ErrRunInProgress, "")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := l.remote.Release(context.Background(), key, owner); err != nil {
				l.logger.Warn("failed to release semester lock", zap.String("semester_id", semesterID), zap.Error(err))
			}
			unlockLocal()
		})
	}, nil
}

func semesterLockKey(semesterID string) string {
	return "allocation:lock:" + semesterID
}
