package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr        string
	DatabaseURL string
	AutoMigrate bool

	DeepgramAPIKey       string
	DeepgramURL          string
	DeepgramModel        string
	DeepgramLanguage     string
	DeepgramEncoding     string
	DeepgramSampleRate   int
	DeepgramChannels     int
	DeepgramKeepAliveSec int

	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	LLMTimeoutSec        int

	QuestionSimilarityThreshold float64
	PromptsPath                 string
	KeynotesArtifactDir         string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func Load() Config {
	return Config{
		Addr:        getenv("INTERVIEWD_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", "file:interviewd.sqlite"),
		AutoMigrate: getenvBool("INTERVIEWD_AUTO_MIGRATE", true),

		DeepgramAPIKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramURL:          getenv("DEEPGRAM_URL", "wss://api.deepgram.com/v1/listen"),
		DeepgramModel:        getenv("DEEPGRAM_MODEL", "base-general"),
		DeepgramLanguage:     getenv("DEEPGRAM_LANGUAGE", "en-IN"),
		DeepgramEncoding:     os.Getenv("DEEPGRAM_ENCODING"),
		DeepgramSampleRate:   getenvInt("DEEPGRAM_SAMPLE_RATE", 0),
		DeepgramChannels:     getenvInt("DEEPGRAM_CHANNELS", 0),
		DeepgramKeepAliveSec: getenvInt("DEEPGRAM_KEEPALIVE_SEC", 8),

		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:          getenv("OPENAI_MODEL", "gpt-3.5-turbo-1106"),
		OpenAIEmbeddingModel: getenv("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
		LLMTimeoutSec:        getenvInt("LLM_TIMEOUT", 60),

		QuestionSimilarityThreshold: getenvFloat("QUESTION_SIMILARITY_THRESHOLD", 0.92),
		PromptsPath:                 os.Getenv("PROMPTS_PATH"),
		KeynotesArtifactDir:         os.Getenv("KEYNOTES_ARTIFACT_DIR"),
	}
}
