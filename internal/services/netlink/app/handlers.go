package app

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/services/netlink/auth"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/service"
)

type apiHandler struct {
	auth   *auth.Service
	svc    *service.Service
	logger logging.Logger
}

func (a *apiHandler) routes(ws http.Handler) http.Handler {
	mux := http.NewServeMux()
	public := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, a.instrument(pattern, h))
	}
	private := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, a.instrument(pattern, a.requireAuth(h)))
	}

	public("GET /healthz", a.handleHealth)
	public("POST /auth/signup", a.handleSignUp)
	public("POST /auth/login", a.handleLogin)
	public("POST /auth/guest", a.handleGuest)
	private("GET /auth/session", a.handleSession)

	private("GET /profile/{key}", a.handleGetProfile)
	private("PUT /profile/{key}", a.handlePutProfile)
	private("DELETE /profile/{key}", a.handleDeleteProfile)

	private("GET /characters", a.handleListCharacters)
	private("PUT /characters/{id}", a.handlePutCharacter)
	private("DELETE /characters/{id}", a.handleDeleteCharacter)
	private("PUT /characters/{id}/archive", a.handleArchiveCharacter)
	private("GET /characters/{id}/archive", a.handleListArchives)

	private("POST /campaigns", a.handleCreateCampaign)
	private("GET /campaigns", a.handleListCampaigns)
	private("POST /campaigns/join", a.handleJoin)
	private("GET /campaigns/{id}", a.handleGetCampaign)
	private("PATCH /campaigns/{id}", a.handleUpdateCampaign)
	private("DELETE /campaigns/{id}", a.handleDeleteCampaign)
	private("GET /campaigns/{id}/members", a.handleListMembers)
	private("PATCH /campaigns/{id}/members/{userID}", a.handleUpdateMember)
	private("GET /campaigns/{id}/rolls", a.handleListRolls)
	private("POST /campaigns/{id}/rolls", a.handleAppendRoll)
	private("GET /campaigns/{id}/messages", a.handleListMessages)
	private("POST /campaigns/{id}/messages", a.handleSendMessage)

	mux.Handle("GET /ws", ws)
	return mux
}

func (a *apiHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *apiHandler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var creds contract.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		a.writeBadRequest(w, err)
		return
	}
	session, err := a.auth.SignUp(r.Context(), creds.Username, creds.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *apiHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds contract.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		a.writeBadRequest(w, err)
		return
	}
	session, err := a.auth.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *apiHandler) handleGuest(w http.ResponseWriter, r *http.Request) {
	session, err := a.auth.Guest(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *apiHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	writeJSON(w, http.StatusOK, contract.Session{UserID: caller.UserID, Username: caller.Username, Guest: caller.Guest})
}

func (a *apiHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	entry, err := a.svc.GetProfile(r.Context(), callerFrom(r), r.PathValue("key"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *apiHandler) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	value, err := readRawJSON(w, r)
	if err != nil {
		a.writeBadRequest(w, err)
		return
	}
	entry, err := a.svc.PutProfile(r.Context(), callerFrom(r), r.PathValue("key"), value)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *apiHandler) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteProfile(r.Context(), callerFrom(r), r.PathValue("key")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiHandler) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	characters, err := a.svc.ListCharacters(r.Context(), callerFrom(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, characters)
}

func (a *apiHandler) handlePutCharacter(w http.ResponseWriter, r *http.Request) {
	sheet, err := readRawJSON(w, r)
	if err != nil {
		a.writeBadRequest(w, err)
		return
	}
	character, err := a.svc.PutCharacter(r.Context(), callerFrom(r), r.PathValue("id"), sheet)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, character)
}

func (a *apiHandler) handleDeleteCharacter(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteCharacter(r.Context(), callerFrom(r), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiHandler) handleArchiveCharacter(w http.ResponseWriter, r *http.Request) {
	created, err := a.svc.ArchiveCharacter(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *apiHandler) handleListArchives(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListArchives(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *apiHandler) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req contract.CreateCampaignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeBadRequest(w, err)
		return
	}
	c, err := a.svc.CreateCampaign(r.Context(), callerFrom(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *apiHandler) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := a.svc.ListCampaigns(r.Context(), callerFrom(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (a *apiHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req contract.JoinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeBadRequest(w, err)
		return
	}
	resp, err := a.svc.JoinByCode(r.Context(), callerFrom(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *apiHandler) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.svc.GetCampaign(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *apiHandler) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req contract.UpdateCampaignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeBadRequest(w, err)
		return
	}
	c, err := a.svc.UpdateCampaign(r.Context(), callerFrom(r), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *apiHandler) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteCampaign(r.Context(), callerFrom(r), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiHandler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.svc.ListMembers(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (a *apiHandler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var req contract.UpdateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeBadRequest(w, err)
		return
	}
	m, err := a.svc.UpdateMember(r.Context(), callerFrom(r), r.PathValue("id"), r.PathValue("userID"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *apiHandler) handleListRolls(w http.ResponseWriter, r *http.Request) {
	rolls, err := a.svc.ListRolls(r.Context(), callerFrom(r), r.PathValue("id"), limitParam(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rolls)
}

func (a *apiHandler) handleAppendRoll(w http.ResponseWriter, r *http.Request) {
	var req contract.RollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeBadRequest(w, err)
		return
	}
	roll, err := a.svc.AppendRoll(r.Context(), callerFrom(r), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, roll)
}

func (a *apiHandler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.svc.ListMessages(r.Context(), callerFrom(r), r.PathValue("id"), limitParam(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *apiHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req contract.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeBadRequest(w, err)
		return
	}
	msg, err := a.svc.SendMessage(r.Context(), callerFrom(r), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// limitParam reads ?limit=; invalid values fall back to the service default.
func limitParam(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}
