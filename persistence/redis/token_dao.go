package redis

import (
	"context"

	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const WAIT_TOKEN string = "WAITTOKEN"
const WAIT_TOKEN_INDEX string = "WAITTOKENS"

type redisWaitTokenDao struct {
	*baseDao
	encDec util.EncoderDecoder[model.WaitToken]
}

var _ persistence.WaitTokenDao = new(redisWaitTokenDao)

func NewRedisWaitTokenDao(conf Config) *redisWaitTokenDao {
	return &redisWaitTokenDao{
		baseDao: newBaseDao(conf),
		encDec:  util.NewJsonEncoderDecoder[model.WaitToken](),
	}
}

func (d *redisWaitTokenDao) SaveToken(token model.WaitToken) error {
	ctx := context.Background()
	data, err := d.encDec.Encode(token)
	if err != nil {
		return err
	}
	pipe := d.redisClient.TxPipeline()
	pipe.Set(ctx, d.getNamespaceKey(WAIT_TOKEN, token.Token), data, 0)
	pipe.SAdd(ctx, d.getNamespaceKey(WAIT_TOKEN_INDEX), token.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// ConsumeToken removes the record in the same round trip it reads it, so a
// duplicate webhook delivery observes ErrNotFound.
func (d *redisWaitTokenDao) ConsumeToken(token string) (*model.WaitToken, error) {
	ctx := context.Background()
	val, err := d.redisClient.GetDel(ctx, d.getNamespaceKey(WAIT_TOKEN, token)).Result()
	if err == rd.Nil {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if err := d.redisClient.SRem(ctx, d.getNamespaceKey(WAIT_TOKEN_INDEX), token).Err(); err != nil {
		logger.Error("error removing wait token from index", zap.String("token", token), zap.Error(err))
	}
	return d.encDec.Decode([]byte(val))
}

func (d *redisWaitTokenDao) DeleteToken(token string) error {
	ctx := context.Background()
	pipe := d.redisClient.TxPipeline()
	pipe.Del(ctx, d.getNamespaceKey(WAIT_TOKEN, token))
	pipe.SRem(ctx, d.getNamespaceKey(WAIT_TOKEN_INDEX), token)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *redisWaitTokenDao) ListTokens() ([]model.WaitToken, error) {
	ctx := context.Background()
	ids, err := d.redisClient.SMembers(ctx, d.getNamespaceKey(WAIT_TOKEN_INDEX)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var tokens []model.WaitToken
	for _, id := range ids {
		val, err := d.redisClient.Get(ctx, d.getNamespaceKey(WAIT_TOKEN, id)).Result()
		if err == rd.Nil {
			continue
		}
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		tok, err := d.encDec.Decode([]byte(val))
		if err != nil {
			continue
		}
		tokens = append(tokens, *tok)
	}
	return tokens, nil
}
