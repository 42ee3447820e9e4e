package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/dispatch-gin/internal/api"
	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/mautops/dispatch-gin/internal/geo"
	"github.com/mautops/dispatch-gin/internal/geocode"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/mautops/dispatch-gin/internal/service"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var sitePoint = geo.Point{Latitude: 55.7539, Longitude: 37.6208}

func init() {
	gin.SetMode(gin.TestMode)
}

// fixedGeocoder 所有地址都解析到 sitePoint
type fixedGeocoder struct{}

func (fixedGeocoder) Geocode(ctx context.Context, address string) (*geocode.Result, error) {
	return &geocode.Result{Point: sitePoint, DisplayName: address}, nil
}

func (fixedGeocoder) Suggest(ctx context.Context, query string) ([]geocode.Suggestion, error) {
	if len([]rune(query)) < geocode.MinQueryLength {
		return []geocode.Suggestion{}, nil
	}
	return []geocode.Suggestion{{PlaceID: 7, Address: query, Point: sitePoint}}, nil
}

type apiFixture struct {
	t      *testing.T
	cfg    *config.Config
	db     *gorm.DB
	tasks  repository.TaskRepository
	tokens *auth.TokenManager
	deps   api.RouterDeps
	router *gin.Engine
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.TaskModel{}, &model.UserModel{}, &model.EventModel{}, &model.AuditLogModel{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func setupAPI(t *testing.T, mutate ...func(cfg *config.Config)) *apiFixture {
	cfg := config.Default()
	cfg.Media.PhotoDir = t.TempDir()
	cfg.Geofence.ProgressInterval = 10 * time.Millisecond
	cfg.Geofence.ProgressResetDelay = 10 * time.Millisecond
	cfg.RateLimit.RPS = 0
	for _, m := range mutate {
		m(cfg)
	}

	db := setupTestDB(t)
	f := &apiFixture{
		t:      t,
		cfg:    cfg,
		db:     db,
		tasks:  repository.NewTaskRepository(db),
		tokens: auth.NewTokenManager(config.AuthConfig{JWTSecret: "test-secret", Issuer: "dispatch-test", TokenTTL: time.Hour}),
	}

	users := repository.NewUserRepository(db)
	ctx := context.Background()
	for name, typ := range map[string]model.UserType{"ivan": model.UserTypeWorker, "olga": model.UserTypeWorker, "boss": model.UserTypeAdmin} {
		require.NoError(t, users.Create(ctx, &model.UserModel{Username: name, PasswordHash: "h", UserType: typ}))
	}

	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	f.deps = api.RouterDeps{
		Config:     cfg,
		DB:         db,
		Tasks:      f.tasks,
		Tokens:     f.tokens,
		Task:       service.NewTaskService(f.tasks, users, fixedGeocoder{}, nil, audit),
		Presence:   service.NewPresenceService(f.tasks, service.PolicyFromConfig(cfg.Geofence), service.WithAuditLog(audit)),
		Export:     service.NewExportService(f.tasks),
		Users:      service.NewUserService(users, f.tokens, cfg.Media),
		Statistics: service.NewStatisticsService(f.tasks),
	}
	f.router = api.SetupRoutes(f.deps)
	return f
}

// withDevices 重建路由,空请求体时从 devices 取定位
func (f *apiFixture) withDevices(devices api.DeviceProviders) {
	f.deps.Devices = devices
	f.router = api.SetupRoutes(f.deps)
}

func (f *apiFixture) seedTask(worker, id string) {
	require.NoError(f.t, f.tasks.Create(context.Background(), &model.Task{
		ID:          id,
		Title:       "Check meter",
		Location:    "Red Square 1",
		Coordinates: sitePoint,
		Time:        "09:30",
		AssignedTo:  worker,
		AssignedBy:  "boss",
		CreatedAt:   time.Now(),
	}))
}

func (f *apiFixture) token(user, role string) string {
	token, _, err := f.tokens.Issue(user, role)
	require.NoError(f.t, err)
	return token
}

func (f *apiFixture) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

// fixAt 距 sitePoint 正北约 meters 米处的定位
func fixAt(meters, accuracy float64) map[string]interface{} {
	return map[string]interface{}{
		"fix": map[string]interface{}{
			"latitude":  sitePoint.Latitude + meters/111195.0,
			"longitude": sitePoint.Longitude,
			"accuracy":  accuracy,
			"timestamp": time.Now(),
		},
	}
}
