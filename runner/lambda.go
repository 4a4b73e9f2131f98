package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sirupsen/logrus"
)

// languageRuntimes maps a user-facing language tag to the Lambda runtime
// serving it.
var languageRuntimes = map[string]string{
	"js":         "nodejs18.x",
	"javascript": "nodejs18.x",
	"py":         "python3.9",
	"python":     "python3.9",
	"java":       "java17",
	"c":          "provided.al2",
	"cpp":        "provided.al2",
	"rs":         "provided.al2",
	"rust":       "provided.al2",
}

type lambdaRunner struct {
	client    *lambda.Client
	functions map[string]string // runtime -> function name
}

// NewLambdaRunner builds the client for the out-of-process execution
// sandbox. One Lambda function per runtime, overridable via env.
func NewLambdaRunner() *lambdaRunner {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	functions := map[string]string{
		"nodejs18.x":   envOr("NODEJS_LAMBDA_FUNCTION", "codeweave-nodejs-runtime"),
		"python3.9":    envOr("PYTHON_LAMBDA_FUNCTION", "codeweave-python-runtime"),
		"java17":       envOr("JAVA_LAMBDA_FUNCTION", "codeweave-java-runtime"),
		"provided.al2": envOr("CPP_LAMBDA_FUNCTION", "codeweave-cpp-runtime"),
	}

	return &lambdaRunner{
		client:    lambda.NewFromConfig(cfg),
		functions: functions,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type invokePayload struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Filename  string `json:"filename"`
	Timestamp string `json:"timestamp"`
}

// invokeResponse accepts both the wrapped and the direct Lambda response
// shapes; some runtimes double-encode the body.
type invokeResponse struct {
	ErrorMessage  string          `json:"errorMessage"`
	Body          json.RawMessage `json:"body"`
	Output        string          `json:"output"`
	Error         string          `json:"error"`
	ExecutionTime int64           `json:"executionTime"`
}

func (r *lambdaRunner) Run(ctx context.Context, req core.RunRequest) (*core.RunResult, error) {
	runtime, ok := languageRuntimes[strings.ToLower(req.Language)]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", req.Language)
	}
	functionName := r.functions[runtime]

	payload, err := json.Marshal(invokePayload{
		Code:      req.Code,
		Language:  req.Language,
		Filename:  req.Filename,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal execution payload: %w", err)
	}

	log := logrus.WithFields(logrus.Fields{
		"language": req.Language,
		"filename": req.Filename,
		"function": functionName,
	})
	log.Info("invoking execution sandbox")

	out, err := r.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", functionName, err)
	}

	var resp invokeResponse
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return nil, fmt.Errorf("parse sandbox response: %w", err)
	}
	if resp.ErrorMessage != "" {
		return nil, fmt.Errorf("sandbox error: %s", resp.ErrorMessage)
	}

	result := &core.RunResult{
		Output:     resp.Output,
		Error:      resp.Error,
		DurationMS: resp.ExecutionTime,
	}
	if len(resp.Body) > 0 {
		// Wrapped format; the body may itself be a JSON-encoded string.
		var body invokeResponse
		raw := resp.Body
		var inner string
		if err := json.Unmarshal(raw, &inner); err == nil {
			raw = json.RawMessage(inner)
		}
		if err := json.Unmarshal(raw, &body); err == nil {
			result.Output = body.Output
			result.Error = body.Error
			result.DurationMS = body.ExecutionTime
		}
	}

	log.WithField("duration_ms", result.DurationMS).Info("sandbox execution finished")
	return result, nil
}

func (r *lambdaRunner) Supports(language string) bool {
	_, ok := languageRuntimes[strings.ToLower(language)]
	return ok
}

func (r *lambdaRunner) Languages() []string {
	out := make([]string, 0, len(languageRuntimes))
	for lang := range languageRuntimes {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
