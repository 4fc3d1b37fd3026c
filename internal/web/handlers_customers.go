package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/CRM/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// customerPayload is the request body for create/update customer.
type customerPayload struct {
	Code        string   `json:"customerCode"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Joined      string   `json:"joined"` // ISO date, optional
	CreditLimit *float64 `json:"creditLimit"`
}

// addressPayload is the request body for create/update address.
type addressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.ListParams{
		Street:     q.Get("street"),
		City:       q.Get("city"),
		Country:    q.Get("country"),
		PostalCode: q.Get("postal_code"),
		OrderBy:    q.Get("order_by"),
		OrderDir:   q.Get("order_dir"),
		Limit:      intQuery(q.Get("limit"), 100),
		Offset:     intQuery(q.Get("offset"), 0),
	}

	customers, total, err := s.dir.ListCustomers(r.Context(), params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"customers": customers,
		"total":     total,
	}

	if wantStats, _ := strconv.ParseBool(q.Get("statistics")); wantStats {
		stats, err := s.dir.Statistics(r.Context(), params)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resp["statistics"] = stats
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "customerID")
	if !ok {
		return
	}

	c, err := s.dir.GetCustomer(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeCustomer(w, r)
	if !ok {
		return
	}

	id, err := s.dir.CreateCustomer(r.Context(), c)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "customerID")
	if !ok {
		return
	}
	c, ok := decodeCustomer(w, r)
	if !ok {
		return
	}

	if err := s.dir.UpdateCustomer(r.Context(), id, c); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "customerID")
	if !ok {
		return
	}

	if err := s.dir.DeleteCustomer(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathUUID(w, r, "customerID")
	if !ok {
		return
	}
	a, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	a.CustomerID = customerID

	id, err := s.dir.CreateAddress(r.Context(), a)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathUUID(w, r, "customerID")
	if !ok {
		return
	}
	addressID, ok := pathUUID(w, r, "addressID")
	if !ok {
		return
	}
	a, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	a.ID = addressID
	a.CustomerID = customerID

	if err := s.dir.UpdateAddress(r.Context(), a); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathUUID(w, r, "customerID")
	if !ok {
		return
	}
	addressID, ok := pathUUID(w, r, "addressID")
	if !ok {
		return
	}

	if err := s.dir.DeleteAddress(r.Context(), customerID, addressID); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeCustomer parses and validates a customer payload.
func decodeCustomer(w http.ResponseWriter, r *http.Request) (store.Customer, bool) {
	var p customerPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid JSON body"))
		return store.Customer{}, false
	}
	if p.Code == "" || p.Name == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("customerCode and name are required"))
		return store.Customer{}, false
	}

	c := store.Customer{
		Code:        p.Code,
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		CreditLimit: p.CreditLimit,
	}
	if p.Joined != "" {
		t, err := time.Parse("2006-01-02", p.Joined)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, errors.New("joined must be an ISO date (YYYY-MM-DD)"))
			return store.Customer{}, false
		}
		c.Joined = &t
	}
	return c, true
}

func decodeAddress(w http.ResponseWriter, r *http.Request) (store.Address, bool) {
	var p addressPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid JSON body"))
		return store.Address{}, false
	}
	if p.Street == "" || p.City == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("street and city are required"))
		return store.Address{}, false
	}
	return store.Address{
		Street:     p.Street,
		City:       p.City,
		Country:    p.Country,
		PostalCode: p.PostalCode,
	}, true
}

// pathUUID parses a UUID path parameter, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
