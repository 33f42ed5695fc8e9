package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/uyenet/membership-backend/monitoring"
	"github.com/uyenet/membership-backend/shared/utils"
	"github.com/uyenet/membership-backend/v1/database"
	"github.com/uyenet/membership-backend/v1/models"
	"github.com/uyenet/membership-backend/v1/services"
	authutils "github.com/uyenet/membership-backend/v1/utils"
)

// V1Handler handles all V1 API routes
type V1Handler struct {
	memberService *services.MemberService
	syncService   *services.SyncService
	statusStore   *services.SyncStatusStore
}

// NewV1Handler wires the member workflow and the sync engine. metrics may
// be nil.
func NewV1Handler(db *gorm.DB, roster services.RosterClient, metrics *monitoring.SyncMetrics) *V1Handler {
	breaker := services.NewCircuitBreaker(3, 60*time.Second)
	statusStore := services.NewSyncStatusStore(db, breaker)
	repo := database.NewGormMemberRepository(db)

	return &V1Handler{
		memberService: services.NewMemberService(db),
		syncService:   services.NewSyncService(repo, roster, breaker, statusStore, metrics),
		statusStore:   statusStore,
	}
}

// SetupV1Routes configures all V1 API routes
func (h *V1Handler) SetupV1Routes(mux *http.ServeMux) {
	// Member routes
	mux.Handle("/api/v1/members", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleMembers)))
	mux.Handle("/api/v1/members/", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleMembers)))

	// Sync routes
	mux.Handle("/api/v1/sync", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleSync)))
	mux.Handle("/api/v1/sync/", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleSync)))
}

// handleMembers handles member-related routes
func (h *V1Handler) handleMembers(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/members")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	// Handle collection endpoint: GET /api/v1/members and POST /api/v1/members
	if len(parts) == 1 && parts[0] == "" {
		switch r.Method {
		case http.MethodGet:
			h.getMembers(w, r)
		case http.MethodPost:
			h.createMember(w, r)
		default:
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(parts) < 1 || parts[0] == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Member ID is required")
		return
	}
	memberId := parts[0]

	// Handle base member endpoint: GET/PUT/DELETE /api/v1/members/:memberId
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.getMember(w, r, memberId)
		case http.MethodPut:
			h.updateMember(w, r, memberId)
		case http.MethodDelete:
			h.deleteMember(w, r, memberId)
		default:
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	// Review decisions: POST /api/v1/members/:memberId/approve and /reject
	if len(parts) == 2 {
		if r.Method != http.MethodPost {
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		switch parts[1] {
		case "approve":
			h.setMemberStatus(w, r, memberId, models.StatusApproved)
		case "reject":
			h.setMemberStatus(w, r, memberId, models.StatusRejected)
		default:
			utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
		}
		return
	}

	utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
}

// handleSync handles sync engine routes
func (h *V1Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sync")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	// Trigger endpoint: POST /api/v1/sync
	if len(parts) == 1 && parts[0] == "" {
		if r.Method != http.MethodPost {
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.triggerSync(w, r)
		return
	}

	if len(parts) == 1 {
		switch parts[0] {
		case "status":
			if r.Method != http.MethodGet {
				utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			utils.RespondWithSuccess(w, http.StatusOK, h.statusStore.GetStatus())
		case "runs":
			if r.Method != http.MethodGet {
				utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			h.getSyncRuns(w, r)
		default:
			utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
		}
		return
	}

	utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
}

func (h *V1Handler) createMember(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Only staff may register pre-approved manual entries
	if req.Provenance == models.ProvenanceManual {
		if _, err := authutils.RequireRole(r, models.RoleStaff); err != nil {
			if _, adminErr := authutils.RequireRole(r, models.RoleAdmin); adminErr != nil {
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
		}
	}

	member, err := h.memberService.CreateMember(&req)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondWithSuccess(w, http.StatusCreated, member)
}

func (h *V1Handler) getMembers(w http.ResponseWriter, r *http.Request) {
	var statusFilter *models.MemberStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.MemberStatus(raw)
		if !status.IsValid() {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		statusFilter = &status
	}
	department := r.URL.Query().Get("department")

	members, err := h.memberService.GetMembers(statusFilter, department)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := models.CollectionResponse{
		Items: members,
		Count: len(members),
	}
	utils.RespondWithSuccess(w, http.StatusOK, response)
}

func (h *V1Handler) getMember(w http.ResponseWriter, r *http.Request, memberId string) {
	member, err := h.memberService.GetMember(memberId)
	if errors.Is(err, services.ErrMemberNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Member not found")
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondWithSuccess(w, http.StatusOK, member)
}

func (h *V1Handler) updateMember(w http.ResponseWriter, r *http.Request, memberId string) {
	var req models.UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	member, err := h.memberService.UpdateMember(memberId, &req)
	if errors.Is(err, services.ErrMemberNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Member not found")
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondWithSuccess(w, http.StatusOK, member)
}

func (h *V1Handler) deleteMember(w http.ResponseWriter, r *http.Request, memberId string) {
	if _, err := authutils.RequireRole(r, models.RoleAdmin); err != nil {
		utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}

	err := h.memberService.DeleteMember(memberId)
	if errors.Is(err, services.ErrMemberNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Member not found")
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *V1Handler) setMemberStatus(w http.ResponseWriter, r *http.Request, memberId string, status models.MemberStatus) {
	if _, err := authutils.RequireRole(r, models.RoleStaff); err != nil {
		if _, adminErr := authutils.RequireRole(r, models.RoleAdmin); adminErr != nil {
			utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
	}

	member, err := h.memberService.SetMemberStatus(memberId, status)
	if errors.Is(err, services.ErrMemberNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Member not found")
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondWithSuccess(w, http.StatusOK, member)
}

func (h *V1Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	opts := models.SyncOptions{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	run, err := h.syncService.Run(r.Context(), opts)
	if errors.Is(err, services.ErrSyncInProgress) {
		utils.RespondWithError(w, http.StatusConflict, "A sync is already in progress")
		return
	}
	if errors.Is(err, services.ErrLocalStoreUnavailable) {
		utils.RespondWithError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		// The run report still carries the partial counts and errors
		utils.RespondWithJSON(w, http.StatusInternalServerError, run)
		return
	}

	utils.RespondWithSuccess(w, http.StatusOK, run)
}

func (h *V1Handler) getSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := h.statusStore.RecentRuns(r.Context(), limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := models.CollectionResponse{
		Items: runs,
		Count: len(runs),
	}
	utils.RespondWithSuccess(w, http.StatusOK, response)
}
