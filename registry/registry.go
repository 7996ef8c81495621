package registry

import (
	"errors"
	"time"

	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTokenNotFound is returned when a token is unknown or already consumed.
// A duplicate or late webhook delivery lands here and becomes a no-op.
var ErrTokenNotFound = errors.New("wait token not found")

// EventWaitRegistry tracks outstanding WAIT_FOR_EVENT nodes by correlation
// token. Tokens are durable (they must survive a restart alongside the run
// state they belong to) and single use.
type EventWaitRegistry struct {
	dao persistence.WaitTokenDao
}

func NewEventWaitRegistry(dao persistence.WaitTokenDao) *EventWaitRegistry {
	return &EventWaitRegistry{dao: dao}
}

// Register issues a fresh token correlating (runId, nodeId) to a future
// external event.
func (r *EventWaitRegistry) Register(runId string, nodeId string) (string, error) {
	token := model.WaitToken{
		Token:     uuid.New().String(),
		RunId:     runId,
		NodeId:    nodeId,
		CreatedAt: time.Now(),
	}
	if err := r.dao.SaveToken(token); err != nil {
		return "", err
	}
	logger.Info("wait token registered", zap.String("runId", runId), zap.String("nodeId", nodeId), zap.String("token", token.Token))
	return token.Token, nil
}

// Resolve consumes the token atomically and returns the suspended run/node
// it belongs to. A second Resolve with the same token returns
// ErrTokenNotFound.
func (r *EventWaitRegistry) Resolve(token string) (*model.WaitToken, error) {
	tok, err := r.dao.ConsumeToken(token)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Remove discards a token without resolving it, e.g. when the owning run is
// cancelled or failed.
func (r *EventWaitRegistry) Remove(token string) error {
	return r.dao.DeleteToken(token)
}

// SweepExpired consumes and returns every token older than maxAge. The
// coordinator fails the corresponding nodes so indefinitely-suspended runs
// never leak.
func (r *EventWaitRegistry) SweepExpired(maxAge time.Duration) ([]model.WaitToken, error) {
	tokens, err := r.dao.ListTokens()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var expired []model.WaitToken
	for _, tok := range tokens {
		if tok.CreatedAt.After(cutoff) {
			continue
		}
		// consume so a webhook racing the sweep cannot resolve it twice
		if _, err := r.dao.ConsumeToken(tok.Token); errors.Is(err, persistence.ErrNotFound) {
			continue
		} else if err != nil {
			logger.Error("error consuming expired wait token", zap.String("token", tok.Token), zap.Error(err))
			continue
		}
		expired = append(expired, tok)
	}
	return expired, nil
}
