package api

import (
	"time"

	"github.com/YardLink/YardLink/internal/driver"
	"github.com/YardLink/YardLink/internal/rate"
	"github.com/YardLink/YardLink/internal/registry"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AdminHandler 基础数据维护：司机、挂车、位置、线路价。
type AdminHandler struct {
	drivers  *driver.Repo
	registry *registry.Repo
	rates    *rate.Repo
	catalog  *rate.Catalog
}

func NewAdminHandler(drivers *driver.Repo, reg *registry.Repo, rates *rate.Repo, catalog *rate.Catalog) *AdminHandler {
	return &AdminHandler{drivers: drivers, registry: reg, rates: rates, catalog: catalog}
}

type createDriverRequest struct {
	Name               string   `json:"name"`
	Username           string   `json:"username"`
	Password           string   `json:"password"`
	CompanyName        string   `json:"company_name"`
	Phone              string   `json:"phone"`
	Email              string   `json:"email"`
	Roles              []string `json:"roles"`
	MaxConcurrentMoves int      `json:"max_concurrent_moves"`
	COIOnFile          bool     `json:"coi_on_file"`
	W9OnFile           bool     `json:"w9_on_file"`
}

// CreateDriver POST /admin/drivers
func (h *AdminHandler) CreateDriver(c *fiber.Ctx) error {
	var req createDriverRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" || req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name, username and password required")
	}

	salt, err := driver.GenerateSaltHex()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate salt")
	}
	hash, err := driver.HashPassword(req.Password, salt)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid password")
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{driver.RoleDriver}
	}
	maxMoves := req.MaxConcurrentMoves
	if maxMoves <= 0 {
		maxMoves = 1
	}

	d := &driver.Driver{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Username:           req.Username,
		PasswordHash:       hash,
		PasswordSalt:       salt,
		CompanyName:        req.CompanyName,
		Phone:              req.Phone,
		Email:              req.Email,
		Roles:              driver.RolesJoin(roles),
		MaxConcurrentMoves: maxMoves,
		COIOnFile:          req.COIOnFile,
		W9OnFile:           req.W9OnFile,
		Contractor1099:     true,
		Active:             true,
	}
	if err := h.drivers.Create(c.UserContext(), d); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// ListDrivers GET /admin/drivers
func (h *AdminHandler) ListDrivers(c *fiber.Ctx) error {
	ds, total, err := h.drivers.List(c.UserContext(), c.QueryInt("offset"), c.QueryInt("limit"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"drivers": ds, "total": total})
}

type updateDriverRequest struct {
	MaxConcurrentMoves *int  `json:"max_concurrent_moves"`
	COIOnFile          *bool `json:"coi_on_file"`
	W9OnFile           *bool `json:"w9_on_file"`
	Active             *bool `json:"active"`
}

// UpdateDriver PATCH /admin/drivers/:id
func (h *AdminHandler) UpdateDriver(c *fiber.Ctx) error {
	var req updateDriverRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	d, err := h.drivers.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if req.MaxConcurrentMoves != nil && *req.MaxConcurrentMoves > 0 {
		d.MaxConcurrentMoves = *req.MaxConcurrentMoves
	}
	if req.COIOnFile != nil {
		d.COIOnFile = *req.COIOnFile
	}
	if req.W9OnFile != nil {
		d.W9OnFile = *req.W9OnFile
	}
	if req.Active != nil {
		d.Active = *req.Active
	}
	if err := h.drivers.Update(c.UserContext(), d); err != nil {
		return writeError(c, err)
	}
	return c.JSON(d)
}

type upsertLocationRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	IsBase  bool   `json:"is_base"`
}

// UpsertLocation POST /admin/locations
func (h *AdminHandler) UpsertLocation(c *fiber.Ctx) error {
	var req upsertLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" {
		return fiber.NewError(fiber.StatusBadRequest, "title required")
	}
	l := &registry.Location{
		ID:      req.ID,
		Title:   req.Title,
		Address: req.Address,
		City:    req.City,
		State:   req.State,
		Zip:     req.Zip,
		IsBase:  req.IsBase,
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if err := h.registry.UpsertLocation(c.UserContext(), l); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(l)
}

type upsertTrailerRequest struct {
	ID                string `json:"id"`
	Number            string `json:"number"`
	IsNew             bool   `json:"is_new"`
	CurrentLocationID string `json:"current_location_id"`
	PairedTrailerID   string `json:"paired_trailer_id"`
}

// UpsertTrailer POST /admin/trailers
func (h *AdminHandler) UpsertTrailer(c *fiber.Ctx) error {
	var req upsertTrailerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Number == "" {
		return fiber.NewError(fiber.StatusBadRequest, "number required")
	}
	t := &registry.Trailer{
		ID:                req.ID,
		Number:            req.Number,
		IsNew:             req.IsNew,
		CurrentLocationID: req.CurrentLocationID,
		PairedTrailerID:   req.PairedTrailerID,
		Status:            registry.TrailerAvailable,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := h.registry.UpsertTrailer(c.UserContext(), t); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// SweepReservations POST /admin/reservations/sweep
// 手动触发过期预订清理（常规路径是读取时的惰性守卫）。
func (h *AdminHandler) SweepReservations(c *fiber.Ctx) error {
	n, err := h.registry.SweepExpiredReservations(c.UserContext(), time.Now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"released": n})
}

type upsertRateRequest struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Amount      float64 `json:"amount"`
	Miles       float64 `json:"miles"`
}

// UpsertRate POST /admin/rates
func (h *AdminHandler) UpsertRate(c *fiber.Ctx) error {
	var req upsertRateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Origin == "" || req.Destination == "" || req.Amount <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "origin, destination and positive amount required")
	}
	rr := &rate.RouteRate{
		ID:          uuid.NewString(),
		Origin:      req.Origin,
		Destination: req.Destination,
		Amount:      req.Amount,
		Miles:       req.Miles,
	}
	if err := h.rates.Upsert(c.UserContext(), rr); err != nil {
		return writeError(c, err)
	}
	if err := h.catalog.Reload(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rr)
}

// ListRates GET /admin/rates
func (h *AdminHandler) ListRates(c *fiber.Ctx) error {
	rs, err := h.rates.ListAll(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"rates": rs})
}
