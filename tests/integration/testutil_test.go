package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"drone-dispatch/internal/admin"
	"drone-dispatch/internal/auth"
	"drone-dispatch/internal/common"
	"drone-dispatch/internal/dispatch"
	"drone-dispatch/internal/events"
	"drone-dispatch/internal/fleet"
	jwtpkg "drone-dispatch/internal/jwt"
	"drone-dispatch/internal/middleware"
	"drone-dispatch/internal/orderstore"
	"drone-dispatch/internal/redis"
	pgmigrate "drone-dispatch/internal/repo/postgres"
	"drone-dispatch/internal/tracking"
)

// testApp holds the wired application for integration tests, backed by real
// Postgres and Redis plus an in-process stub of the order record store.
type testApp struct {
	DB       *sqlx.DB
	Redis    *goredis.Client
	Router   *gin.Engine
	JWT      *jwtpkg.Service
	Engine   *dispatch.Engine
	Registry *dispatch.Registry
	Fleet    fleet.Service
	Orders   *stubOrderStore
}

func skipIfNoInfra(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("skipping integration test; set INTEGRATION_TEST=1 and ensure Postgres/Redis are running")
	}
}

// stubOrderStore is an in-memory order service speaking the wire protocol the
// dispatch side expects, including the conditional assign and its 409.
type stubOrderStore struct {
	mu          sync.Mutex
	orders      map[string]*orderstore.OrderRecord
	restaurants map[string]string
	srv         *httptest.Server
}

func newStubOrderStore(t *testing.T) *stubOrderStore {
	t.Helper()
	s := &stubOrderStore{
		orders:      make(map[string]*orderstore.OrderRecord),
		restaurants: make(map[string]string),
	}

	r := gin.New()
	r.GET("/internal/orders/drone-eligible", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var out []*orderstore.OrderRecord
		for _, o := range s.orders {
			if o.DeliveryMethod == orderstore.DeliveryMethodDrone && o.DroneID == nil && o.Status != orderstore.OrderStatusDelivered {
				cp := *o
				out = append(out, &cp)
			}
		}
		c.JSON(http.StatusOK, gin.H{"orders": out})
	})
	r.GET("/internal/orders/:id", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		o, ok := s.orders[c.Param("id")]
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, o)
	})
	r.PATCH("/internal/orders/:id/assign-drone", func(c *gin.Context) {
		var req struct {
			DroneID string `json:"drone_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		o, ok := s.orders[c.Param("id")]
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		if o.DroneID != nil {
			c.Status(http.StatusConflict)
			return
		}
		o.DroneID = &req.DroneID
		o.Status = orderstore.OrderStatusInTransit
		c.Status(http.StatusOK)
	})
	r.PATCH("/internal/orders/:id/drone-location", func(c *gin.Context) {
		var req struct {
			DroneLocation common.Location `json:"drone_location"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		o, ok := s.orders[c.Param("id")]
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		loc := req.DroneLocation
		o.DroneLocation = &loc
		c.Status(http.StatusOK)
	})
	r.PATCH("/internal/orders/:id/drone-delivered", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		o, ok := s.orders[c.Param("id")]
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		o.Status = orderstore.OrderStatusDelivered
		c.Status(http.StatusOK)
	})
	r.GET("/internal/restaurants/:id", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		name, ok := s.restaurants[c.Param("id")]
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": name})
	})

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubOrderStore) addOrder(o *orderstore.OrderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *stubOrderStore) addRestaurant(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurants[id] = name
}

func (s *stubOrderStore) order(id string) orderstore.OrderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	skipIfNoInfra(t)

	gin.SetMode(gin.TestMode)

	// Postgres
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=dispatch_admin password=secure_password dbname=drone_dispatch sslmode=disable"
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("postgres connect: %v", err)
	}
	if err := pgmigrate.RunMigrationsUp(db); err != nil {
		db.Close()
		t.Fatalf("migrations: %v", err)
	}
	db.MustExec(`DELETE FROM drones`)

	// Redis
	redisAddr := os.Getenv("TEST_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		db.Close()
		t.Fatalf("redis connect: %v", err)
	}

	stub := newStubOrderStore(t)

	// Infrastructure
	jwtService := jwtpkg.NewService("test-secret", 24*time.Hour)
	droneCache := redis.NewDroneLocationCache(rdb, 60)
	idempotencyStore := redis.NewIdempotencyStore(rdb, 300)
	rateLimiter := redis.NewRateLimiter(rdb, 1000, 60) // generous for tests

	orderClient := orderstore.NewClient(stub.srv.URL, 3*time.Second, 5, 30*time.Second)
	restaurantClient := orderstore.NewRestaurantClient(stub.srv.URL, 3*time.Second)

	// Services
	fleetService := fleet.NewService(fleet.NewRepository(), db)
	registry := dispatch.NewRegistry()
	engine := dispatch.NewEngine(fleetService, orderClient, droneCache, events.NoopPublisher{}, registry, dispatch.Config{
		TickInterval: 20 * time.Millisecond,
	})
	adminService := admin.NewService(fleetService, engine, events.NoopPublisher{})
	trackingService := tracking.NewService(orderClient, fleetService, restaurantClient, droneCache, 30)
	authService := auth.NewAuthService(jwtService)

	// Handlers
	authHandler := auth.NewHandler(authService)
	adminHandler := admin.NewHandler(adminService)
	dispatchHandler := dispatch.NewHandler(engine)
	trackingHandler := tracking.NewHandler(trackingService)

	// Router mirrors cmd/server/routes.go
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RateLimit(rateLimiter))
	r.Use(middleware.Auth(jwtService))

	authGroup := r.Group("/auth")
	authGroup.POST("/token", authHandler.GenerateToken)

	customerGroup := r.Group("")
	customerGroup.Use(middleware.RoleGuard("customer"))
	customerGroup.Use(middleware.Bulkhead(100))
	customerGroup.GET("/tracking/:orderId", trackingHandler.GetTracking)

	serviceGroup := r.Group("/internal")
	serviceGroup.Use(middleware.RoleGuard("service"))
	serviceGroup.Use(middleware.Bulkhead(50))
	serviceGroup.Use(middleware.Idempotency(idempotencyStore))
	serviceGroup.POST("/orders/:orderId/confirm-delivery", dispatchHandler.ConfirmDelivery)
	serviceGroup.POST("/orders/:orderId/cancel-assignment", dispatchHandler.CancelAssignment)

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.RoleGuard("admin"))
	adminGroup.Use(middleware.Bulkhead(20))
	adminGroup.POST("/drones", adminHandler.CreateDrone)
	adminGroup.GET("/drones", adminHandler.ListDrones)
	adminGroup.GET("/drones/:id", adminHandler.GetDrone)
	adminGroup.PATCH("/drones/:id", adminHandler.UpdateDrone)
	adminGroup.POST("/drones/:id/activate", adminHandler.ActivateDrone)
	adminGroup.POST("/drones/:id/disable", adminHandler.DisableDrone)
	adminGroup.PATCH("/drones/:id/status", adminHandler.UpdateDroneStatus)
	adminGroup.POST("/dispatch/sweep", dispatchHandler.TriggerSweep)
	adminGroup.POST("/dispatch/assign", dispatchHandler.AssignDrone)
	adminGroup.GET("/dispatch/assignments", dispatchHandler.ListAssignments)
	adminGroup.DELETE("/dispatch/assignments/:orderId", dispatchHandler.CancelAssignment)

	app := &testApp{
		DB:       db,
		Redis:    rdb,
		Router:   r,
		JWT:      jwtService,
		Engine:   engine,
		Registry: registry,
		Fleet:    fleetService,
		Orders:   stub,
	}

	t.Cleanup(func() {
		registry.Shutdown()
		db.Exec(`DELETE FROM drones`)
		rdb.FlushDB(context.Background())
		db.Close()
		rdb.Close()
	})

	return app
}

// --- Token helpers ---

func customerToken(t *testing.T, app *testApp, name string) string {
	t.Helper()
	token, err := app.JWT.GenerateToken(name, "customer")
	if err != nil {
		t.Fatalf("failed to generate customer token: %v", err)
	}
	return token
}

func serviceToken(t *testing.T, app *testApp) string {
	t.Helper()
	token, err := app.JWT.GenerateToken("order-service", "service")
	if err != nil {
		t.Fatalf("failed to generate service token: %v", err)
	}
	return token
}

func adminToken(t *testing.T, app *testApp) string {
	t.Helper()
	token, err := app.JWT.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatalf("failed to generate admin token: %v", err)
	}
	return token
}

// --- HTTP request helpers ---

func doRequest(app *testApp, method, path string, body any, token string) *httptest.ResponseRecorder {
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Idempotency-Key", fmt.Sprintf("idem-%d", time.Now().UnixNano()))

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	return w
}

func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, w.Body.String())
	}
	return result
}

// --- Fixtures ---

func nearbyOrder(id string) *orderstore.OrderRecord {
	rest := common.NewLocation(24.7136, 46.6753)
	dest := common.NewLocation(24.7156, 46.6773)
	return &orderstore.OrderRecord{
		ID:                 id,
		Status:             orderstore.OrderStatusAccepted,
		DeliveryMethod:     orderstore.DeliveryMethodDrone,
		RestaurantID:       "rest-" + id,
		RestaurantLocation: &rest,
		DeliveryLocation:   &dest,
	}
}

func createTestDrone(t *testing.T, app *testApp, name string) string {
	t.Helper()
	w := doRequest(app, http.MethodPost, "/admin/drones", map[string]any{
		"name":         name,
		"base_lat":     24.7136,
		"base_lng":     46.6753,
		"base_address": "depot",
		"capacity_kg":  3,
		"active":       true,
	}, adminToken(t, app))
	if w.Code != http.StatusCreated {
		t.Fatalf("create drone: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseJSON(t, w)
	drone := resp["drone"].(map[string]any)
	return drone["id"].(string)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func doFormRequest(app *testApp, method, path string, formData map[string]string) *httptest.ResponseRecorder {
	form := ""
	for k, v := range formData {
		if form != "" {
			form += "&"
		}
		form += k + "=" + v
	}
	req := httptest.NewRequest(method, path, bytes.NewBufferString(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	return w
}
