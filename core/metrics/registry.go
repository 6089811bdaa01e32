package metrics

import (
	"fmt"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// ModuleConfig contains the type name and raw settings of a sink.
type ModuleConfig struct {
	Type string         `json:"type" yaml:"type"`
	Conf map[string]any `json:"conf" yaml:"conf"`
}

// Config lists the configured sinks.
type Config struct {
	Sinks []ModuleConfig `json:"sinks" yaml:"sinks"`
}

// Factory builds a sink from raw settings.
type Factory func(conf map[string]any) (Sink, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterSink adds a sink factory identified by name.
func RegisterSink(name string, f Factory) error {
	if f == nil {
		return fmt.Errorf("factory nil for %s", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := factories[name]; ok {
		return fmt.Errorf("factory already registered for %s", name)
	}
	factories[name] = f
	return nil
}

func create(cfg ModuleConfig) (Sink, error) {
	regMu.RLock()
	f, ok := factories[cfg.Type]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink type %s", cfg.Type)
	}
	return f(cfg.Conf)
}

// NewSink creates the sink described by cfgs. No configuration yields a
// NopSink and several configurations a MultiSink.
func NewSink(cfgs []ModuleConfig) (Sink, error) {
	switch len(cfgs) {
	case 0:
		return NopSink{}, nil
	case 1:
		return create(cfgs[0])
	}
	sinks := make([]Sink, len(cfgs))
	for i, c := range cfgs {
		s, err := create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}

// Decode fills out the provided struct from raw settings using json tags.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
