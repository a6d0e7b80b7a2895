// Package memory is an in-process implementation of the repository
// interfaces with the same uniqueness and scoping rules as the SQL schema.
// Service and handler tests run against it.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Store struct {
	mu            sync.Mutex
	accounts      map[uuid.UUID]*model.Account
	credentials   map[uuid.UUID]*model.Credential
	visits        map[uuid.UUID]*model.Visit
	prescriptions map[uuid.UUID][]model.Prescription
	reviews       map[uuid.UUID]*model.Review
	drugs         map[primitive.ObjectID]*model.Drug
}

func NewStore() *Store {
	return &Store{
		accounts:      map[uuid.UUID]*model.Account{},
		credentials:   map[uuid.UUID]*model.Credential{},
		visits:        map[uuid.UUID]*model.Visit{},
		prescriptions: map[uuid.UUID][]model.Prescription{},
		reviews:       map[uuid.UUID]*model.Review{},
		drugs:         map[primitive.ObjectID]*model.Drug{},
	}
}

func (s *Store) Accounts() repository.AccountRepository       { return &accounts{s} }
func (s *Store) Credentials() repository.CredentialRepository { return &credentials{s} }
func (s *Store) Visits() repository.VisitRepository           { return &visits{s} }
func (s *Store) Reviews() repository.ReviewRepository         { return &reviews{s} }
func (s *Store) Drugs() repository.DrugRepository             { return &drugs{s} }

func strEq(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func copyAccount(a *model.Account) *model.Account {
	c := *a
	if a.DoctorOptions != nil {
		opts := *a.DoctorOptions
		opts.VisitWeekdays = append([]int(nil), a.DoctorOptions.VisitWeekdays...)
		opts.VisitRange = append([]string(nil), a.DoctorOptions.VisitRange...)
		opts.VisitExceptions = append([]string(nil), a.DoctorOptions.VisitExceptions...)
		c.DoctorOptions = &opts
	}
	return &c
}

// ---- accounts

type accounts struct{ s *Store }

func (r *accounts) checkUnique(a *model.Account) error {
	for id, other := range r.s.accounts {
		if id == a.ID {
			continue
		}
		switch {
		case strEq(a.Phone, other.Phone), strEq(a.Phone, other.NewPhone), strEq(a.NewPhone, other.Phone):
			return apperrors.DuplicateKey("phone", nil)
		case strEq(a.Email, other.Email):
			return apperrors.DuplicateKey("email", nil)
		case strEq(a.IDCard, other.IDCard):
			return apperrors.DuplicateKey("id card", nil)
		}
	}
	return nil
}

func (r *accounts) Create(ctx context.Context, account *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkUnique(account); err != nil {
		return err
	}
	r.s.accounts[account.ID] = copyAccount(account)
	r.s.credentials[account.ID] = &model.Credential{AccountID: account.ID}
	return nil
}

func (r *accounts) find(match func(*model.Account) bool) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Active && match(a) {
			return copyAccount(a), nil
		}
	}
	return nil, apperrors.NotFound("account", nil)
}

func (r *accounts) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.find(func(a *model.Account) bool { return a.ID == id })
}

func (r *accounts) GetByPhone(ctx context.Context, phone string) (*model.Account, error) {
	return r.find(func(a *model.Account) bool { return a.Phone != nil && *a.Phone == phone })
}

func (r *accounts) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = strings.ToLower(email)
	return r.find(func(a *model.Account) bool { return a.Email != nil && *a.Email == email })
}

func (r *accounts) List(ctx context.Context, filter *model.AccountFilter) ([]*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.Account{}
	for _, a := range r.s.accounts {
		if !a.Active || (filter.Role != "" && a.Role != filter.Role) {
			continue
		}
		if filter.Specification != "" && (a.DoctorOptions == nil || a.DoctorOptions.Specification != filter.Specification) {
			continue
		}
		out = append(out, copyAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Pagination), nil
}

func (r *accounts) UpdateProfile(ctx context.Context, account *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.accounts[account.ID]
	if !ok || !cur.Active {
		return apperrors.NotFound("account", nil)
	}
	if err := r.checkUnique(account); err != nil {
		return err
	}
	cur.Name, cur.Email, cur.EmailVerified = account.Name, account.Email, account.EmailVerified
	cur.IDCard, cur.Birthday, cur.Photo = account.IDCard, account.Birthday, account.Photo
	cur.UpdatedAt = time.Now()
	return nil
}

func (r *accounts) UpdateDoctorOptions(ctx context.Context, id uuid.UUID, opts *model.DoctorOptions) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.accounts[id]
	if !ok || !cur.Active || cur.Role != model.RoleDoctor {
		return nil, apperrors.NotFound("doctor", nil)
	}
	next := *opts
	if cur.DoctorOptions != nil {
		next.RatingsAverage = cur.DoctorOptions.RatingsAverage
		next.RatingsQuantity = cur.DoctorOptions.RatingsQuantity
	} else {
		next.RatingsAverage, next.RatingsQuantity = model.DefaultRatingsAverage, 0
	}
	cur.DoctorOptions = &next
	return copyAccount(cur), nil
}

func (r *accounts) UpdateRatings(ctx context.Context, doctorID uuid.UUID, stats model.RatingStats) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.accounts[doctorID]
	if !ok || cur.Role != model.RoleDoctor {
		return apperrors.NotFound("doctor", nil)
	}
	if cur.DoctorOptions == nil {
		cur.DoctorOptions = &model.DoctorOptions{}
	}
	cur.DoctorOptions.RatingsAverage = stats.Average
	cur.DoctorOptions.RatingsQuantity = stats.Quantity
	return nil
}

func (r *accounts) SetPendingPhone(ctx context.Context, id uuid.UUID, phone *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.accounts[id]
	if !ok || !cur.Active {
		return apperrors.NotFound("account", nil)
	}
	probe := &model.Account{Base: model.Base{ID: id}, NewPhone: phone}
	if err := r.checkUnique(probe); err != nil {
		return err
	}
	cur.NewPhone = phone
	return nil
}

func (r *accounts) ApplyPendingPhone(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.accounts[id]
	if !ok || !cur.Active || cur.NewPhone == nil {
		return nil, apperrors.NotFound("pending phone", nil)
	}
	cur.Phone, cur.NewPhone = cur.NewPhone, nil
	return copyAccount(cur), nil
}

func (r *accounts) SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.accounts[id]
	if !ok || !cur.Active {
		return apperrors.NotFound("account", nil)
	}
	cur.EmailVerified = verified
	return nil
}

func (r *accounts) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.accounts[id]
	if !ok || !cur.Active {
		return apperrors.NotFound("account", nil)
	}
	cur.Active = false
	return nil
}

// ---- credentials

type credentials struct{ s *Store }

func (r *credentials) get(id uuid.UUID) (*model.Credential, error) {
	c, ok := r.s.credentials[id]
	if !ok {
		return nil, apperrors.NotFound("credential", nil)
	}
	return c, nil
}

func (r *credentials) Get(ctx context.Context, accountID uuid.UUID) (*model.Credential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.get(accountID)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (r *credentials) SetPassword(ctx context.Context, accountID uuid.UUID, hash string, changedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.get(accountID)
	if err != nil {
		return err
	}
	c.PasswordHash, c.PasswordChangedAt = &hash, &changedAt
	return nil
}

func (r *credentials) SetOTP(ctx context.Context, accountID uuid.UUID, hash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.get(accountID)
	if err != nil {
		return err
	}
	c.OTPHash, c.OTPExpiresAt = &hash, &expiresAt
	return nil
}

func (r *credentials) ClearOTP(ctx context.Context, accountID uuid.UUID, hash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.get(accountID)
	if err != nil {
		return false, err
	}
	if c.OTPHash == nil || *c.OTPHash != hash {
		return false, nil
	}
	c.OTPHash, c.OTPExpiresAt = nil, nil
	return true, nil
}

func slot(c *model.Credential, kind model.TokenKind) (**string, **time.Time) {
	if kind == model.TokenEmailVerify {
		return &c.VerifyTokenHash, &c.VerifyTokenExpires
	}
	return &c.ResetTokenHash, &c.ResetTokenExpiresAt
}

func (r *credentials) SetToken(ctx context.Context, accountID uuid.UUID, kind model.TokenKind, hash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.get(accountID)
	if err != nil {
		return err
	}
	h, e := slot(c, kind)
	*h, *e = &hash, &expiresAt
	return nil
}

func (r *credentials) ClearToken(ctx context.Context, accountID uuid.UUID, kind model.TokenKind) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.get(accountID)
	if err != nil {
		return err
	}
	h, e := slot(c, kind)
	*h, *e = nil, nil
	return nil
}

func (r *credentials) ConsumeToken(ctx context.Context, kind model.TokenKind, hash string, now time.Time) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, c := range r.s.credentials {
		if a, ok := r.s.accounts[id]; !ok || !a.Active {
			continue
		}
		h, e := slot(c, kind)
		if *h != nil && **h == hash && *e != nil && (*e).After(now) {
			*h, *e = nil, nil
			return id, nil
		}
	}
	return uuid.Nil, apperrors.NotFound("token", nil)
}

// ---- visits

type visits struct{ s *Store }

func inScope(v *model.Visit, scope model.VisitScope) bool {
	if scope.PatientID != nil && v.PatientID != *scope.PatientID {
		return false
	}
	if scope.DoctorID != nil && v.DoctorID != *scope.DoctorID {
		return false
	}
	if scope.Closed != nil && v.Closed != *scope.Closed {
		return false
	}
	return true
}

func (r *visits) slotTaken(doctorID uuid.UUID, at time.Time, except uuid.UUID) bool {
	for id, v := range r.s.visits {
		if id != except && v.DoctorID == doctorID && v.DateTime.Equal(at) {
			return true
		}
	}
	return false
}

func (r *visits) Create(ctx context.Context, visit *model.Visit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.slotTaken(visit.DoctorID, visit.DateTime, uuid.Nil) {
		return apperrors.SlotConflict(nil)
	}
	v := *visit
	r.s.visits[v.ID] = &v
	return nil
}

func (r *visits) Get(ctx context.Context, id uuid.UUID, scope model.VisitScope) (*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok || !inScope(v, scope) {
		return nil, apperrors.NotFound("visit", nil)
	}
	cp := *v
	return &cp, nil
}

func (r *visits) List(ctx context.Context, filter *model.VisitFilter) ([]*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	scope := model.VisitScope{PatientID: filter.PatientID, DoctorID: filter.DoctorID, Closed: filter.Closed}
	out := []*model.Visit{}
	for _, v := range r.s.visits {
		if !inScope(v, scope) {
			continue
		}
		if filter.From != nil && v.DateTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !v.DateTime.Before(*filter.To) {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return page(out, filter.Pagination), nil
}

func (r *visits) ListForPatientDoctor(ctx context.Context, patientID, doctorID uuid.UUID, from, to time.Time) ([]*model.Visit, error) {
	return r.List(ctx, &model.VisitFilter{PatientID: &patientID, DoctorID: &doctorID, From: &from, To: &to})
}

func (r *visits) BookedTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	list, err := r.List(ctx, &model.VisitFilter{DoctorID: &doctorID, From: &from, To: &to, Pagination: model.Pagination{PageSize: 100}})
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, len(list))
	for _, v := range list {
		times = append(times, v.DateTime)
	}
	return times, nil
}

func (r *visits) Reschedule(ctx context.Context, id uuid.UUID, scope model.VisitScope, dateTime time.Time) (*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok || !inScope(v, scope) {
		return nil, apperrors.NotFound("visit", nil)
	}
	if r.slotTaken(v.DoctorID, dateTime, id) {
		return nil, apperrors.SlotConflict(nil)
	}
	v.DateTime = dateTime
	v.UpdatedAt = time.Now()
	cp := *v
	return &cp, nil
}

func (r *visits) Delete(ctx context.Context, id uuid.UUID, scope model.VisitScope) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok || !inScope(v, scope) {
		return apperrors.NotFound("visit", nil)
	}
	delete(r.s.visits, id)
	delete(r.s.prescriptions, id)
	return nil
}

func (r *visits) Close(ctx context.Context, id, doctorID uuid.UUID) (*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok || v.DoctorID != doctorID || v.Closed {
		return nil, apperrors.NotFound("visit", nil)
	}
	v.Closed = true
	cp := *v
	return &cp, nil
}

func (r *visits) HasClosedVisit(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.visits {
		if v.PatientID == patientID && v.DoctorID == doctorID && v.Closed {
			return true, nil
		}
	}
	return false, nil
}

func (r *visits) AddPrescriptions(ctx context.Context, visitID, doctorID uuid.UUID, items []model.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[visitID]
	if !ok || v.DoctorID != doctorID {
		return apperrors.NotFound("visit", nil)
	}
	for _, item := range items {
		item.VisitID = visitID
		r.s.prescriptions[visitID] = append(r.s.prescriptions[visitID], item)
	}
	return nil
}

func (r *visits) ListPrescriptions(ctx context.Context, visitID uuid.UUID) ([]model.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.Prescription{}, r.s.prescriptions[visitID]...), nil
}

func (r *visits) DeletePrescription(ctx context.Context, visitID, doctorID, prescriptionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[visitID]
	if !ok || v.DoctorID != doctorID {
		return apperrors.NotFound("prescription", nil)
	}
	items := r.s.prescriptions[visitID]
	for i, p := range items {
		if p.ID == prescriptionID {
			r.s.prescriptions[visitID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("prescription", nil)
}

func (r *visits) ListReminders(ctx context.Context, from, to time.Time) ([]*model.VisitReminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.VisitReminder{}
	for _, v := range r.s.visits {
		if v.Closed || v.DateTime.Before(from) || !v.DateTime.Before(to) {
			continue
		}
		patient, ok := r.s.accounts[v.PatientID]
		if !ok || !patient.Active {
			continue
		}
		rem := &model.VisitReminder{
			VisitID:      v.ID,
			DateTime:     v.DateTime,
			PatientName:  patient.Name,
			PatientEmail: patient.Email,
		}
		if doctor, ok := r.s.accounts[v.DoctorID]; ok {
			rem.DoctorName = doctor.Name
		}
		out = append(out, rem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out, nil
}

// ---- reviews

type reviews struct{ s *Store }

func (r *reviews) Create(ctx context.Context, review *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.reviews {
		if other.DoctorID == review.DoctorID && other.PatientID == review.PatientID {
			return apperrors.DuplicateKey("review", nil)
		}
	}
	cp := *review
	r.s.reviews[cp.ID] = &cp
	return nil
}

func (r *reviews) Get(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", nil)
	}
	cp := *rv
	return &cp, nil
}

func (r *reviews) List(ctx context.Context, filter *model.ReviewFilter) ([]*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Review{}
	for _, rv := range r.s.reviews {
		if filter.DoctorID != nil && rv.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.PatientID != nil && rv.PatientID != *filter.PatientID {
			continue
		}
		cp := *rv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Pagination), nil
}

func (r *reviews) Update(ctx context.Context, review *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.reviews[review.ID]
	if !ok || cur.PatientID != review.PatientID {
		return apperrors.NotFound("review", nil)
	}
	cur.Rating, cur.Comment = review.Rating, review.Comment
	*review = *cur
	return nil
}

func (r *reviews) Delete(ctx context.Context, id, patientID uuid.UUID) (*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.reviews[id]
	if !ok || cur.PatientID != patientID {
		return nil, apperrors.NotFound("review", nil)
	}
	delete(r.s.reviews, id)
	return cur, nil
}

func (r *reviews) Stats(ctx context.Context, doctorID uuid.UUID) (model.RatingStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum, n := 0, 0
	for _, rv := range r.s.reviews {
		if rv.DoctorID == doctorID {
			sum += rv.Rating
			n++
		}
	}
	if n == 0 {
		return model.RatingStats{Average: model.DefaultRatingsAverage}, nil
	}
	avg := float64(sum) / float64(n)
	return model.RatingStats{Average: float64(int(avg*10+0.5)) / 10, Quantity: n}, nil
}

// ---- drugs

type drugs struct{ s *Store }

func (r *drugs) Create(ctx context.Context, drug *model.Drug) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.drugs {
		if d.Name == drug.Name {
			return apperrors.DuplicateKey("name", nil)
		}
	}
	drug.ID = primitive.NewObjectID()
	cp := *drug
	r.s.drugs[cp.ID] = &cp
	return nil
}

func (r *drugs) Get(ctx context.Context, id string) (*model.Drug, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NotFound("drug", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.drugs[oid]
	if !ok {
		return nil, apperrors.NotFound("drug", nil)
	}
	cp := *d
	return &cp, nil
}

func (r *drugs) List(ctx context.Context, filter *model.DrugFilter) ([]*model.Drug, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Drug{}
	for _, d := range r.s.drugs {
		if filter.Name != "" && !strings.Contains(d.Name, strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Category != "" && d.Category != filter.Category {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, filter.Pagination), nil
}

func (r *drugs) Update(ctx context.Context, drug *model.Drug) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.drugs[drug.ID]; !ok {
		return apperrors.NotFound("drug", nil)
	}
	for id, d := range r.s.drugs {
		if id != drug.ID && d.Name == drug.Name {
			return apperrors.DuplicateKey("name", nil)
		}
	}
	cp := *drug
	r.s.drugs[drug.ID] = &cp
	return nil
}

func (r *drugs) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.NotFound("drug", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.drugs[oid]; !ok {
		return apperrors.NotFound("drug", nil)
	}
	delete(r.s.drugs, oid)
	return nil
}

func page[T any](items []T, p model.Pagination) []T {
	start := p.Offset()
	if start >= len(items) {
		return items[:0]
	}
	end := start + p.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
