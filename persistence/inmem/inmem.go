package inmem

import (
	"sync"

	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
)

// Map-backed stores used when the engine runs with --storage-impl memory and
// by the engine tests. RunState goes through the same JSON round trip the
// redis DAOs use, so callers never share memory with the store.

type InMemDefinitionStore struct {
	mu       sync.RWMutex
	defs     map[string]map[int]model.WorkflowDefinition
	versions map[string]int
}

var _ persistence.DefinitionStore = new(InMemDefinitionStore)

func NewInMemDefinitionStore() *InMemDefinitionStore {
	return &InMemDefinitionStore{
		defs:     make(map[string]map[int]model.WorkflowDefinition),
		versions: make(map[string]int),
	}
}

func (s *InMemDefinitionStore) Save(workflowId string, nodes []model.NodeSpec, edges []model.Edge) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version := s.versions[workflowId] + 1
	s.versions[workflowId] = version
	if s.defs[workflowId] == nil {
		s.defs[workflowId] = make(map[int]model.WorkflowDefinition)
	}
	s.defs[workflowId][version] = model.WorkflowDefinition{
		WorkflowId: workflowId,
		Version:    version,
		Nodes:      nodes,
		Edges:      edges,
	}
	return version, nil
}

func (s *InMemDefinitionStore) Load(workflowId string, version int) (*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[workflowId][version]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &def, nil
}

func (s *InMemDefinitionStore) LatestVersion(workflowId string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.versions[workflowId]
	if !ok {
		return 0, persistence.ErrNotFound
	}
	return version, nil
}

type InMemRunStateDao struct {
	mu     sync.RWMutex
	runs   map[string][]byte
	active map[string]bool
	encDec util.EncoderDecoder[model.RunState]
}

var _ persistence.RunStateDao = new(InMemRunStateDao)

func NewInMemRunStateDao() *InMemRunStateDao {
	return &InMemRunStateDao{
		runs:   make(map[string][]byte),
		active: make(map[string]bool),
		encDec: util.NewJsonEncoderDecoder[model.RunState](),
	}
}

func (d *InMemRunStateDao) SaveRunState(run *model.RunState) error {
	data, err := d.encDec.Encode(*run)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs[run.RunId] = data
	d.active[run.RunId] = true
	return nil
}

func (d *InMemRunStateDao) GetRunState(runId string) (*model.RunState, error) {
	d.mu.RLock()
	data, ok := d.runs[runId]
	d.mu.RUnlock()
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return d.encDec.Decode(data)
}

func (d *InMemRunStateDao) ListActiveRunIds() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []string
	for id := range d.active {
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *InMemRunStateDao) MarkRunTerminal(runId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, runId)
	return nil
}

type InMemWaitTokenDao struct {
	mu     sync.Mutex
	tokens map[string]model.WaitToken
}

var _ persistence.WaitTokenDao = new(InMemWaitTokenDao)

func NewInMemWaitTokenDao() *InMemWaitTokenDao {
	return &InMemWaitTokenDao{
		tokens: make(map[string]model.WaitToken),
	}
}

func (d *InMemWaitTokenDao) SaveToken(token model.WaitToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[token.Token] = token
	return nil
}

func (d *InMemWaitTokenDao) ConsumeToken(token string) (*model.WaitToken, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tok, ok := d.tokens[token]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	delete(d.tokens, token)
	return &tok, nil
}

func (d *InMemWaitTokenDao) DeleteToken(token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tokens, token)
	return nil
}

func (d *InMemWaitTokenDao) ListTokens() ([]model.WaitToken, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var tokens []model.WaitToken
	for _, tok := range d.tokens {
		tokens = append(tokens, tok)
	}
	return tokens, nil
}
