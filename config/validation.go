package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, err.Field, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validateVectorDB()...)
	errs = append(errs, c.validateDatabase()...)
	errs = append(errs, c.validateSession()...)
	errs = append(errs, c.validateChat()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateLLM() ValidationErrors {
	var errs ValidationErrors

	switch c.LLM.Provider {
	case "openai", "ollama":
	case "":
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: "llm provider is required",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown llm provider %q (supported: openai, ollama)", c.LLM.Provider),
		})
	}

	if c.LLM.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.model",
			Message: "llm model is required",
		})
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.api_key",
			Message: "api key is required for the openai provider",
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be within [0, 2]",
		})
	}
	return errs
}

func (c *Config) validateVectorDB() ValidationErrors {
	var errs ValidationErrors

	switch c.VectorDB.Provider {
	case "memory":
	case "milvus":
		if c.VectorDB.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.host",
				Message: "host is required for the milvus provider",
			})
		}
		if c.VectorDB.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.collection",
				Message: "collection is required for the milvus provider",
			})
		}
		if c.Embedding.Provider == "" {
			errs = append(errs, ValidationError{
				Field:   "embedding.provider",
				Message: "embedding provider is required for the milvus provider",
			})
		}
	case "":
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: "vectordb provider is required",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: fmt.Sprintf("unknown vectordb provider %q (supported: memory, milvus)", c.VectorDB.Provider),
		})
	}

	switch c.Embedding.Provider {
	case "hash", "openai", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown embedding provider %q (supported: openai, hash)", c.Embedding.Provider),
		})
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "embedding.api_key",
			Message: "api key is required for the openai embedding provider",
		})
	}
	return errs
}

func (c *Config) validateDatabase() ValidationErrors {
	var errs ValidationErrors

	if c.Database.Driver == "" {
		errs = append(errs, ValidationError{
			Field:   "database.driver",
			Message: "database driver is required",
		})
	}
	if c.Database.DSN == "" {
		errs = append(errs, ValidationError{
			Field:   "database.dsn",
			Message: "database dsn is required",
		})
	}
	return errs
}

func (c *Config) validateSession() ValidationErrors {
	var errs ValidationErrors

	if c.Session.TimeoutMinutes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.timeout_minutes",
			Message: "session timeout must be positive",
		})
	}
	if c.Session.SweepEvery <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.sweep_every",
			Message: "sweep interval must be positive",
		})
	}
	if c.Session.MaxHistory < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.max_history",
			Message: "max history cannot be negative",
		})
	}
	return errs
}

func (c *Config) validateChat() ValidationErrors {
	var errs ValidationErrors

	if c.Chat.TopK <= 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.top_k",
			Message: "top_k must be positive",
		})
	}
	if c.Chat.HybridTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.hybrid_timeout_seconds",
			Message: "hybrid timeout must be positive",
		})
	}
	if c.Chat.SQLWorkers <= 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.sql_workers",
			Message: "sql worker count must be positive",
		})
	}
	return errs
}
