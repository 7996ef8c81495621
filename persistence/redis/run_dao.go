package redis

import (
	"context"

	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	rd "github.com/go-redis/redis/v9"
)

const RUN string = "RUN"
const ACTIVE_RUNS string = "ACTIVERUNS"

type redisRunStateDao struct {
	*baseDao
	encDec util.EncoderDecoder[model.RunState]
}

var _ persistence.RunStateDao = new(redisRunStateDao)

func NewRedisRunStateDao(conf Config) *redisRunStateDao {
	return &redisRunStateDao{
		baseDao: newBaseDao(conf),
		encDec:  util.NewJsonEncoderDecoder[model.RunState](),
	}
}

func (d *redisRunStateDao) SaveRunState(run *model.RunState) error {
	ctx := context.Background()
	data, err := d.encDec.Encode(*run)
	if err != nil {
		return err
	}
	key := d.getNamespaceKey(RUN, run.RunId)
	pipe := d.redisClient.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, d.getNamespaceKey(ACTIVE_RUNS), run.RunId)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *redisRunStateDao) GetRunState(runId string) (*model.RunState, error) {
	ctx := context.Background()
	key := d.getNamespaceKey(RUN, runId)
	val, err := d.redisClient.Get(ctx, key).Result()
	if err == rd.Nil {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return d.encDec.Decode([]byte(val))
}

func (d *redisRunStateDao) ListActiveRunIds() ([]string, error) {
	ctx := context.Background()
	ids, err := d.redisClient.SMembers(ctx, d.getNamespaceKey(ACTIVE_RUNS)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ids, nil
}

func (d *redisRunStateDao) MarkRunTerminal(runId string) error {
	ctx := context.Background()
	if err := d.redisClient.SRem(ctx, d.getNamespaceKey(ACTIVE_RUNS), runId).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
