package llm

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestNewClient_NoAPIKey(t *testing.T) {
	originalKey := os.Getenv("GEMINI_API_KEY")
	_ = os.Unsetenv("GEMINI_API_KEY")
	_ = os.Unsetenv("GOOGLE_GEMINI_API_KEY")
	_ = os.Unsetenv("GOOGLE_AI_API_KEY")
	viper.Set("gemini.api_key", "")
	defer func() {
		if originalKey != "" {
			_ = os.Setenv("GEMINI_API_KEY", originalKey)
		}
	}()

	_, err := NewClient("")
	if err == nil {
		t.Fatal("expected error when no API key is available")
	}
	if !strings.Contains(err.Error(), "gemini API key is required") {
		t.Errorf("expected API key error, got: %v", err)
	}
}

func TestNewClient_ModelFallback(t *testing.T) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	if client.ModelName() == "" {
		t.Error("expected a default model name to be set")
	}
}

func TestGenerateStructured_RequiresSchema(t *testing.T) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	_, err = client.GenerateStructured(context.Background(), "extract tags", GenerationOptions{})
	if err == nil {
		t.Error("expected error when ResponseSchema is missing")
	}
}

func TestGenerateEmbedding_RequiresText(t *testing.T) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	_, err = client.GenerateEmbedding(context.Background(), "")
	if err == nil {
		t.Error("expected error for empty embedding text")
	}
}
