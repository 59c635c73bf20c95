package llm

import (
	"context"
	"strings"
	"testing"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Complete(ctx context.Context, p *Prompt, opts *RequestOptions) (*Response, error) {
	return &Response{Content: "ok"}, nil
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (s *stubProvider) Name() string { return s.name }

func TestFactory_CreateNone(t *testing.T) {
	f := NewFactory()

	for _, name := range []string{"", "none"} {
		p, err := f.Create(ProviderConfig{Provider: name})
		if err != nil {
			t.Errorf("Create(%q) error: %v", name, err)
		}
		if p != nil {
			t.Errorf("Create(%q) = %v, want nil provider", name, p)
		}
	}
}

func TestFactory_CreateUnknown(t *testing.T) {
	f := NewFactory()
	f.Register("known", func(cfg ProviderConfig) (Provider, error) {
		return &stubProvider{name: "known"}, nil
	})

	_, err := f.Create(ProviderConfig{Provider: "mystery"})
	if err == nil {
		t.Fatal("expected error for unregistered provider")
	}
	if !strings.Contains(err.Error(), "mystery") {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestFactory_CreateRegistered(t *testing.T) {
	f := NewFactory()
	var gotCfg ProviderConfig
	f.Register("stub", func(cfg ProviderConfig) (Provider, error) {
		gotCfg = cfg
		return &stubProvider{name: "stub"}, nil
	})

	p, err := f.Create(ProviderConfig{Provider: "stub", Model: "test-model", APIKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected provider")
	}
	if gotCfg.Model != "test-model" || gotCfg.APIKey != "key" {
		t.Errorf("config not passed through: %+v", gotCfg)
	}
	if _, ok := p.(*stubProvider); !ok {
		t.Errorf("expected unwrapped provider, got %T", p)
	}
}

func TestFactory_CreateWrapsWithRetry(t *testing.T) {
	f := NewFactory()
	f.Register("stub", func(cfg ProviderConfig) (Provider, error) {
		return &stubProvider{name: "stub"}, nil
	})

	p, err := f.Create(ProviderConfig{Provider: "stub", MaxRetries: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*RetryProvider); !ok {
		t.Errorf("expected retry wrapper, got %T", p)
	}
	if p.Name() != "stub" {
		t.Errorf("wrapper should delegate Name, got %q", p.Name())
	}
}

func TestKnownProviders(t *testing.T) {
	for _, name := range []string{"ollama", "openai", "anthropic", "groq"} {
		if KnownProviders[name] == "" {
			t.Errorf("missing preset URL for %q", name)
		}
	}
}
