package service

import (
	"VideoFactory-server/config"
	"VideoFactory-server/logger"
)

// BuildAdapters creates one adapter per configured provider. A provider whose
// API key is missing is served by a mock under the same name so local runs
// work without credentials.
func BuildAdapters(providers []config.ProviderConfig, uploader Uploader, log *logger.Logger) []Adapter {
	out := make([]Adapter, 0, len(providers))
	for _, p := range providers {
		key := p.APIKey()
		needsKey := p.Kind != "worker" && p.Kind != "mock"
		if needsKey && key == "" {
			log.Warn("provider api key not set, using mock adapter", "provider", p.Name, "env", p.APIKeyEnv)
			out = append(out, NewMockAdapter(p.Name, p.Capability))
			continue
		}
		switch p.Kind {
		case "runway":
			out = append(out, NewRunwayAdapter(p.Name, p.BaseURL, key, p.Model))
		case "pika":
			out = append(out, NewPikaAdapter(p.Name, p.BaseURL, key))
		case "replicate":
			out = append(out, NewReplicateAdapter(p.Name, p.BaseURL, key, p.Model, p.Capability))
		case "elevenlabs":
			out = append(out, NewElevenLabsAdapter(p.Name, p.BaseURL, key, p.Voice, p.Model, uploader))
		case "worker":
			out = append(out, NewWorkerAdapter(p.Name, p.BaseURL, p.Capability))
		case "mock":
			out = append(out, NewMockAdapter(p.Name, p.Capability))
		default:
			log.Warn("unknown provider kind, skipped", "provider", p.Name, "kind", p.Kind)
		}
	}
	return out
}
