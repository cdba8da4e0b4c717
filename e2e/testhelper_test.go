package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/storyforge/api/internal/auth"
	"github.com/storyforge/api/internal/client"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/handler"
	"github.com/storyforge/api/internal/middleware"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/service"
	"github.com/storyforge/api/internal/store"
	ws "github.com/storyforge/api/internal/websocket"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"
)

// testApp holds all components needed for testing. Stores are exposed so
// tests can seed records that normally only background workers produce.
type testApp struct {
	app    *fiber.App
	stores *store.Stores
}

// nopEnqueuer accepts every task without a broker so handler tests run
// without a worker server draining queues.
type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "e2e", Queue: "e2e", Type: task.Type()}, nil
}

// setupApp creates a Fiber app identical to main.go but with in-memory
// stores and unconfigured external clients.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis only backs the rate limiter here; it fails open when absent
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	stores := store.NewMemoryStores()
	tasks := nopEnqueuer{}

	validate := validator.New()

	// External clients — all unconfigured (no API keys)
	groqClient := client.NewGroqClient(&config.GroqConfig{})
	assemblyClient := client.NewAssemblyAIClient(&config.AssemblyAIConfig{})

	credits := config.CreditsConfig{InitialGrant: 10}

	hub := ws.NewHub()

	// Services
	storyService := service.NewStoryService(stores, tasks, groqClient, credits)
	segmentService := service.NewSegmentService(stores, tasks, credits)
	videoService := service.NewVideoService(stores, tasks, assemblyClient, nil, nil, hub, credits)

	// Handlers
	storyHandler := handler.NewStoryHandler(storyService, validate)
	segmentHandler := handler.NewSegmentHandler(segmentService, validate)
	videoHandler := handler.NewVideoHandler(videoService, validate)
	creditsHandler := handler.NewCreditsHandler(stores.Credits, credits)

	// Auth handler (for /auth/verify)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Auth middleware — legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"groq":       false,
				"replicate":  false,
				"minimax":    false,
				"assemblyai": false,
				"renderer":   false,
				"r2":         false,
				"auth":       true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// API routes (authenticated). Very high rate limits so tests never block.
	api := app.Group("/api", authMiddleware.Authenticate())

	stories := api.Group("/stories")
	stories.Post("/", rateLimiter.StoryLimit(10000), storyHandler.Create)
	stories.Get("/", storyHandler.List)
	stories.Get("/:id", storyHandler.Get)
	stories.Put("/:id/script", storyHandler.UpdateScript)
	stories.Post("/:id/review", rateLimiter.StoryLimit(10000), storyHandler.Review)
	stories.Post("/:id/grammar", rateLimiter.StoryLimit(10000), storyHandler.FixGrammar)
	stories.Post("/:id/clone", storyHandler.Clone)

	stories.Post("/:id/segments", rateLimiter.SegmentLimit(10000), segmentHandler.Generate)
	stories.Get("/:id/segments", segmentHandler.List)
	stories.Post("/:id/segments/add", rateLimiter.SegmentLimit(10000), segmentHandler.Add)
	stories.Post("/:id/segments/:segmentId/image", rateLimiter.SegmentLimit(10000), segmentHandler.RegenerateImage)

	stories.Post("/:id/video", rateLimiter.VideoLimit(10000), videoHandler.Generate)
	stories.Get("/:id/video", videoHandler.Latest)
	videos := api.Group("/videos")
	videos.Get("/:id", videoHandler.Get)
	videos.Get("/:id/transcription", videoHandler.PollTranscription)

	api.Get("/credits", creditsHandler.Balance)

	return &testApp{app: app, stores: stores}
}

// seedStory inserts a story owned by the given user directly into the store.
// seedSeq keeps seeded ids unique within a test, whatever mix of users and
// statuses it seeds.
var seedSeq int64

func seedStory(t *testing.T, ta *testApp, userID string, status model.StoryStatus, script string) *model.Story {
	t.Helper()
	story := &model.Story{
		ID:        fmt.Sprintf("story-%s-%d", strings.ReplaceAll(t.Name(), "/", "-"), atomic.AddInt64(&seedSeq, 1)),
		UserID:    userID,
		Title:     "Seeded story",
		Script:    script,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := ta.stores.Stories.Create(context.Background(), story); err != nil {
		t.Fatalf("failed to seed story: %v", err)
	}
	return story
}

// seedSegment inserts a converged segment with an image.
func seedSegment(t *testing.T, ta *testApp, storyID string, order int) *model.Segment {
	t.Helper()
	segment := &model.Segment{
		ID:        fmt.Sprintf("segment-%s-%d-%d", strings.ReplaceAll(t.Name(), "/", "-"), order, atomic.AddInt64(&seedSeq, 1)),
		StoryID:   storyID,
		Order:     order,
		Text:      "A quiet village wakes at dawn.",
		ImageURL:  "https://assets.test/segments/seeded/image.png",
		CreatedAt: time.Now(),
	}
	if err := ta.stores.Segments.Create(context.Background(), segment); err != nil {
		t.Fatalf("failed to seed segment: %v", err)
	}
	return segment
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: userID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "storyforge-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
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

// doAuthRequest performs a request authenticated as the default test user.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doUserRequest(t, app, testUserID, method, path, body)
}

// doUserRequest performs a request authenticated as the given user.
func doUserRequest(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t, userID)
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

// parseJSONArray parses a response body that is a JSON array.
func parseJSONArray(t *testing.T, resp *http.Response) []interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result []interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON array: %v\nbody: %s", err, body)
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

// assertErrorCode checks the error envelope's code field.
func assertErrorCode(t *testing.T, resp *http.Response, code string) {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error object in response")
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %s, got %v", code, errObj["code"])
	}
}
