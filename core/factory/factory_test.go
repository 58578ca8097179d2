package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler struct {
	Path  string
	Batch int
}

type handlerConf struct {
	Path  string `json:"path"`
	Batch int    `json:"batch_size"`
}

func newHandler(conf map[string]any) (*handler, error) {
	c := handlerConf{Batch: 100}
	if err := Decode(conf, &c); err != nil {
		return nil, err
	}
	return &handler{Path: c.Path, Batch: c.Batch}, nil
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[*handler]()
	if err := reg.Register("jsonl", newHandler); err != nil {
		t.Fatalf("register: %v", err)
	}
	h, err := reg.Create(ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "out.jsonl"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.Path != "out.jsonl" || h.Batch != 100 {
		t.Fatalf("unexpected handler %+v", h)
	}
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[*handler]()
	require.NoError(t, reg.Register("jsonl", newHandler))
	assert.Error(t, reg.Register("jsonl", newHandler), "duplicate name")
	assert.Error(t, reg.Register("sqlite", nil), "nil factory")
	_, err := reg.Create(ModuleConfig{Type: "kafka"})
	assert.ErrorContains(t, err, "unknown module type kafka")
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry[*handler]()
	for _, name := range []string{"sqlite", "jsonl", "mqtt"} {
		require.NoError(t, reg.Register(name, newHandler))
	}
	assert.Equal(t, []string{"jsonl", "mqtt", "sqlite"}, reg.Names())
}

func TestDecodeRejectsWrongType(t *testing.T) {
	var c handlerConf
	err := Decode(map[string]any{"batch_size": "many"}, &c)
	assert.Error(t, err)
}
