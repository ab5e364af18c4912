package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemline/api/internal/auth"
	"github.com/stemline/api/internal/client"
	"github.com/stemline/api/internal/config"
	"github.com/stemline/api/internal/handler"
	"github.com/stemline/api/internal/middleware"
	"github.com/stemline/api/internal/pipeline"
	"github.com/stemline/api/internal/service"
	"github.com/stemline/api/internal/store"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testRedisAddr = "localhost:6379"
	testRedisDB   = 15
)

// fakeRemotes serves the Sonauto and Music.AI APIs plus the audio they
// point at. Each job needs one pending poll before it finishes.
type fakeRemotes struct {
	srv *httptest.Server

	mu               sync.Mutex
	prompts          []string
	separationInputs []string
	generationPolls  int
	separationPolls  int
	separationStatus string
}

func newFakeRemotes(t *testing.T) *fakeRemotes {
	t.Helper()
	f := &fakeRemotes{separationStatus: "SUCCEEDED"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sonauto/generations", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.prompts = append(f.prompts, body.Prompt)
		f.mu.Unlock()
		w.Write([]byte(`{"task_id":"gen-1"}`))
	})
	mux.HandleFunc("GET /sonauto/generations/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.generationPolls++
		polls := f.generationPolls
		f.mu.Unlock()
		if polls == 1 {
			w.Write([]byte(`{"task_id":"gen-1","status":"GENERATING"}`))
			return
		}
		fmt.Fprintf(w, `{"task_id":"gen-1","status":"SUCCESS","song_paths":["%s/assets/generated.mp3"],"metadata":{"genre":"jazz","bpm":92}}`, f.srv.URL)
	})
	mux.HandleFunc("POST /musicai/job", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Params struct {
				InputURL string `json:"inputUrl"`
			} `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.separationInputs = append(f.separationInputs, body.Params.InputURL)
		f.mu.Unlock()
		w.Write([]byte(`{"id":"sep-1"}`))
	})
	mux.HandleFunc("GET /musicai/job/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.separationPolls++
		polls := f.separationPolls
		status := f.separationStatus
		f.mu.Unlock()
		if polls == 1 {
			w.Write([]byte(`{"id":"sep-1","status":"STARTED","result":null}`))
			return
		}
		if status != "SUCCEEDED" {
			fmt.Fprintf(w, `{"id":"sep-1","status":"%s","result":null}`, status)
			return
		}
		fmt.Fprintf(w, `{"id":"sep-1","status":"SUCCEEDED","result":{"vocals":"%[1]s/assets/vocals.mp3","accompaniment":"%[1]s/assets/accompaniment.mp3","duration":61.5}}`, f.srv.URL)
	})
	mux.HandleFunc("GET /assets/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("audio:" + r.PathValue("name")))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRemotes) failSeparation() {
	f.mu.Lock()
	f.separationStatus = "FAILED"
	f.mu.Unlock()
}

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	remotes *fakeRemotes
	blobs   *client.MemoryStorage
	tracks  *store.MemoryStore
	redis   *redis.Client
}

// setupApp builds the routes of main.go against fake remote services and
// in-memory storage. Job routes additionally need Redis.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	remotes := newFakeRemotes(t)
	blobs := client.NewMemoryStorage("https://blobs.test")
	tracks := store.NewMemoryStore()

	redisClient := redis.NewClient(&redis.Options{
		Addr: testRedisAddr,
		DB:   testRedisDB,
	})
	t.Cleanup(func() { redisClient.Close() })

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: testRedisAddr,
		DB:   testRedisDB,
	})
	t.Cleanup(func() { asynqClient.Close() })

	p := pipeline.New(pipeline.Deps{
		Generator: client.NewSonautoClient(&config.SonautoConfig{APIKey: "sonauto-key", BaseURL: remotes.srv.URL + "/sonauto"}),
		Separator: client.NewMusicAIClient(&config.MusicAIConfig{
			APIKey:   "musicai-key",
			BaseURL:  remotes.srv.URL + "/musicai",
			Workflow: "music-ai/stems-vocals-accompaniment",
		}),
		Blobs:   blobs,
		Fetcher: client.NewAssetClient(&config.PipelineConfig{FetchTimeout: 5 * time.Second}),
		Tracks:  tracks,
	}, pipeline.Options{
		DefaultPrompt:         "AI-generated track",
		PollInterval:          10 * time.Millisecond,
		GenerationMaxAttempts: 10,
		SeparationMaxAttempts: 10,
		RunTimeout:            30 * time.Second,
	})

	logger := zerolog.Nop()
	authn := auth.NewAuthenticator(nil, testJWTSecret)
	trackService := service.NewTrackService(redisClient, asynqClient)
	trackHandler := handler.NewTrackHandler(p, trackService, tracks, validator.New(), logger)
	exportHandler := handler.NewExportHandler(service.NewExportService(tracks, blobs), validator.New(), logger)
	authHandler := handler.NewAuthHandler(authn)
	rateLimiter := middleware.NewRateLimiter(redisClient, logger)

	app := fiber.New(fiber.Config{
		BodyLimit: 55 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"sonauto":   true,
				"musicai":   true,
				"storage":   false,
				"documents": "memory",
				"events":    false,
				"auth":      authn.Configured(),
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	api := app.Group("/api", middleware.Authenticate(authn))

	// Use very high rate limits so tests don't get blocked
	trackRoutes := api.Group("/tracks")
	trackRoutes.Post("/generate", rateLimiter.GenerateLimit(10000), trackHandler.Generate)
	trackRoutes.Post("/jobs", rateLimiter.JobsLimit(10000), trackHandler.StartJob)
	trackRoutes.Get("/jobs/status/:jobId", trackHandler.JobStatus)
	trackRoutes.Get("/jobs/result/:jobId", trackHandler.JobResult)
	trackRoutes.Get("/:trackId", trackHandler.Get)
	trackRoutes.Post("/:trackId/export", exportHandler.Track)

	return &testApp{
		app:     app,
		remotes: remotes,
		blobs:   blobs,
		tracks:  tracks,
		redis:   redisClient,
	}
}

// requireRedis skips tests that queue jobs when Redis is not running
func (ta *testApp) requireRedis(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ta.redis.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: redis not available at %s: %v", testRedisAddr, err)
	}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueLegacyToken(testJWTSecret, "test-user-123", "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
