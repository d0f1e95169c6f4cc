package appconfig

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/SaiNageswarS/go-api-boot/config"
	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/SaiNageswarS/medicode-agent/prompts"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/SaiNageswarS/medicode-agent/vectordb"
)

type AppConfig struct {
	config.BootConfig `ini:",extends"`

	ICDIndex   string `env:"ICD-INDEX" ini:"icd_index"`
	CPTIndex   string `env:"CPT-INDEX" ini:"cpt_index"`
	HCPCSIndex string `env:"HCPCS-INDEX" ini:"hcpcs_index"`
	TopK       int    `env:"TOP-K" ini:"top_k"`

	EmbeddingModel      string `env:"EMBEDDING-MODEL" ini:"embedding_model"`
	EmbeddingDimensions int    `env:"EMBEDDING-DIMENSIONS" ini:"embedding_dimensions"`

	RequestTimeoutSeconds  int  `env:"REQUEST-TIMEOUT-SECONDS" ini:"request_timeout_seconds"`
	PipelineTimeoutSeconds int  `env:"PIPELINE-TIMEOUT-SECONDS" ini:"pipeline_timeout_seconds"`
	SequentialCoding       bool `env:"SEQUENTIAL-CODING" ini:"sequential_coding"`
	StructuringRetries     int  `env:"STRUCTURING-RETRIES" ini:"structuring_retries"`
	CodingMaxTurns         int  `env:"CODING-MAX-TURNS" ini:"coding_max_turns"`
	OCREnabled             bool `env:"OCR-ENABLED" ini:"ocr_enabled"`

	UploadDir string `env:"UPLOAD-DIR" ini:"upload_dir"`
	TraceDB   string `env:"TRACE-DB" ini:"trace_db"`
	HTTPPort  string `env:"HTTP-PORT" ini:"http_port"`
	GRPCPort  string `env:"GRPC-PORT" ini:"grpc_port"`

	// Empty values keep the provider/model from agents.yaml.
	EntityStructuringProvider string `env:"ENTITY-STRUCTURING-PROVIDER" ini:"entity_structuring_provider"`
	EntityStructuringModel    string `env:"ENTITY-STRUCTURING-MODEL" ini:"entity_structuring_model"`
	ICDCodingProvider         string `env:"ICD-CODING-PROVIDER" ini:"icd_coding_provider"`
	ICDCodingModel            string `env:"ICD-CODING-MODEL" ini:"icd_coding_model"`
	HCPCSCodingProvider       string `env:"HCPCS-CODING-PROVIDER" ini:"hcpcs_coding_provider"`
	HCPCSCodingModel          string `env:"HCPCS-CODING-MODEL" ini:"hcpcs_coding_model"`
	CPTCodingProvider         string `env:"CPT-CODING-PROVIDER" ini:"cpt_coding_provider"`
	CPTCodingModel            string `env:"CPT-CODING-MODEL" ini:"cpt_coding_model"`
	JudgeProvider             string `env:"JUDGE-PROVIDER" ini:"judge_provider"`
	JudgeModel                string `env:"JUDGE-MODEL" ini:"judge_model"`
}

// VectorStoreSecret is read from the environment, never from config.ini.
const VectorStoreSecret = "PINECONE_API_KEY"

// ApplyDefaults fills settings left empty in config.ini.
func (c *AppConfig) ApplyDefaults() {
	if c.ICDIndex == "" {
		c.ICDIndex = vectordb.DefaultIndexNames[vectordb.IndexDiagnostic]
	}
	if c.CPTIndex == "" {
		c.CPTIndex = vectordb.DefaultIndexNames[vectordb.IndexProcedural]
	}
	if c.HCPCSIndex == "" {
		c.HCPCSIndex = vectordb.DefaultIndexNames[vectordb.IndexSupply]
	}
	if c.TopK <= 0 {
		c.TopK = vectordb.DefaultTopK
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 60
	}
	if c.PipelineTimeoutSeconds <= 0 {
		c.PipelineTimeoutSeconds = 300
	}
	if c.StructuringRetries < 0 {
		c.StructuringRetries = 0
	}
	if c.CodingMaxTurns <= 0 {
		c.CodingMaxTurns = 3
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.HTTPPort == "" {
		c.HTTPPort = ":8000"
	}
	if c.GRPCPort == "" {
		c.GRPCPort = ":50051"
	}
}

// ApplyPersonaOverrides replaces the provider and model of each persona that
// has a non-empty setting in config.
func (c *AppConfig) ApplyPersonaOverrides(personas map[string]prompts.Persona) {
	overrides := map[string][2]string{
		prompts.EntityStructuring: {c.EntityStructuringProvider, c.EntityStructuringModel},
		prompts.ICDCoding:         {c.ICDCodingProvider, c.ICDCodingModel},
		prompts.HCPCSCoding:       {c.HCPCSCodingProvider, c.HCPCSCodingModel},
		prompts.CPTCoding:         {c.CPTCodingProvider, c.CPTCodingModel},
		prompts.Judge:             {c.JudgeProvider, c.JudgeModel},
	}
	for key, o := range overrides {
		p, ok := personas[key]
		if !ok {
			continue
		}
		if v := strings.TrimSpace(o[0]); v != "" {
			p.Provider = v
		}
		if v := strings.TrimSpace(o[1]); v != "" {
			p.Model = v
		}
		personas[key] = p
	}
}

func (c *AppConfig) IndexNames() map[vectordb.Index]string {
	return map[vectordb.Index]string{
		vectordb.IndexDiagnostic: c.ICDIndex,
		vectordb.IndexProcedural: c.CPTIndex,
		vectordb.IndexSupply:     c.HCPCSIndex,
	}
}

func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *AppConfig) PipelineTimeout() time.Duration {
	return time.Duration(c.PipelineTimeoutSeconds) * time.Second
}

// RequiredSecrets lists the API keys the configured providers and the vector
// store need, sorted and without duplicates.
func RequiredSecrets(personas map[string]prompts.Persona) []string {
	seen := map[string]bool{VectorStoreSecret: true}
	for _, p := range personas {
		if key := llm.CredentialEnv(p.Provider); key != "" {
			seen[key] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// CheckSecrets reports every secret the personas need that is missing from
// the environment.
func CheckSecrets(personas map[string]prompts.Persona) error {
	return checkSecrets(RequiredSecrets(personas), os.LookupEnv)
}

func checkSecrets(required []string, lookup func(string) (string, bool)) error {
	var missing []string
	for _, key := range required {
		if v, ok := lookup(key); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing environment variables: %s", schema.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
