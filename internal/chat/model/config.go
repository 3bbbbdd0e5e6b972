package model

// ================ Config ================
type ConversationConfig struct {
	Store         string `envconfig:"CONVERSATION_STORE" default:"memory"`
	TTL           string `envconfig:"CONVERSATION_TTL" default:"24h"`
	HistoryWindow int    `envconfig:"CONVERSATION_HISTORY_WINDOW" default:"1"`
	QuestionsOnly bool   `envconfig:"CONVERSATION_QUESTIONS_ONLY" default:"false"`
}

type CompletionModelConfig struct {
	Provider    string   `envconfig:"LLM_PROVIDER" default:"openai"`
	Model       string   `envconfig:"LLM_MODEL" default:"gpt-3.5-turbo"`
	MaxTokens   int      `envconfig:"LLM_MAX_TOKENS" default:"1024"`
	Temperature *float32 `envconfig:"LLM_TEMPERATURE" default:"0.5"`
}

type EmbeddingConfig struct {
	Provider  string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	Model     string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	CacheSize int    `envconfig:"EMBEDDING_CACHE_SIZE" default:"512"`
}

type VectorStoreConfig struct {
	Provider       string `envconfig:"VECTORSTORE_PROVIDER" default:"local"`
	Dir            string `envconfig:"VECTORSTORE_DIR" default:"data/processed/reddit_jokes_chroma_db"`
	Collection     string `envconfig:"VECTORSTORE_COLLECTION" default:"reddit_jokes_2000"`
	MilvusAddress  string `envconfig:"MILVUS_ADDRESS" default:"localhost:19530"`
	MilvusUsername string `envconfig:"MILVUS_USERNAME"`
	MilvusPassword string `envconfig:"MILVUS_PASSWORD"`
	MilvusDB       string `envconfig:"MILVUS_DB"`
}

// RetrievalConfig tunes retrieval. A nil Lambda uses the MMR default; 0 is a
// valid setting.
type RetrievalConfig struct {
	K      int      `envconfig:"RETRIEVAL_K" default:"3"`
	Method string   `envconfig:"RETRIEVAL_METHOD" default:"similarity"`
	FetchK int      `envconfig:"RETRIEVAL_FETCH_K" default:"10"`
	Lambda *float64 `envconfig:"RETRIEVAL_LAMBDA" default:"0.5"`
}

type PromptConfig struct {
	Dir              string `envconfig:"PROMPT_DIR" default:"prompts"`
	SystemPrompt     string `envconfig:"SYSTEM_PROMPT" default:"v1"`
	QuestionTemplate string `envconfig:"QUESTION_AUG_PROMPT"`
	TokenCeiling     int    `envconfig:"PROMPT_TOKEN_CEILING" default:"2048"`
	TruncateTokens   int    `envconfig:"PROMPT_TRUNCATE_TOKENS" default:"512"`
	TokenizerModel   string `envconfig:"TOKENIZER_MODEL" default:"gpt-3.5-turbo"`
}
