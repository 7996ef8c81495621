package redis

import (
	"context"
	"strconv"

	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const DEFINITION string = "DEF"
const DEFINITION_VERSION string = "DEFVER"

type redisDefinitionStore struct {
	*baseDao
	encDec util.EncoderDecoder[model.WorkflowDefinition]
}

var _ persistence.DefinitionStore = new(redisDefinitionStore)

func NewRedisDefinitionStore(conf Config) *redisDefinitionStore {
	return &redisDefinitionStore{
		baseDao: newBaseDao(conf),
		encDec:  util.NewJsonEncoderDecoder[model.WorkflowDefinition](),
	}
}

func (ds *redisDefinitionStore) Save(workflowId string, nodes []model.NodeSpec, edges []model.Edge) (int, error) {
	ctx := context.Background()
	versionKey := ds.getNamespaceKey(DEFINITION_VERSION, workflowId)
	version, err := ds.redisClient.Incr(ctx, versionKey).Result()
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	def := model.WorkflowDefinition{
		WorkflowId: workflowId,
		Version:    int(version),
		Nodes:      nodes,
		Edges:      edges,
	}
	data, err := ds.encDec.Encode(def)
	if err != nil {
		return 0, err
	}
	key := ds.getNamespaceKey(DEFINITION, workflowId, strconv.Itoa(int(version)))
	if err := ds.redisClient.Set(ctx, key, data, 0).Err(); err != nil {
		logger.Error("error saving workflow definition", zap.String("workflow", workflowId), zap.Error(err))
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	return int(version), nil
}

func (ds *redisDefinitionStore) Load(workflowId string, version int) (*model.WorkflowDefinition, error) {
	ctx := context.Background()
	key := ds.getNamespaceKey(DEFINITION, workflowId, strconv.Itoa(version))
	val, err := ds.redisClient.Get(ctx, key).Result()
	if err == rd.Nil {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ds.encDec.Decode([]byte(val))
}

func (ds *redisDefinitionStore) LatestVersion(workflowId string) (int, error) {
	ctx := context.Background()
	versionKey := ds.getNamespaceKey(DEFINITION_VERSION, workflowId)
	val, err := ds.redisClient.Get(ctx, versionKey).Result()
	if err == rd.Nil {
		return 0, persistence.ErrNotFound
	}
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	return strconv.Atoi(val)
}
