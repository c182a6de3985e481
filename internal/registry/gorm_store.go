package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
	dbpkg "github.com/KDHBuddhika/suwatha/internal/db"
)

// maxClaimAttempts bounds how many candidates a single claim will chase when
// other claimers keep winning the conditional update.
const maxClaimAttempts = 16

var ErrClaimContention = errors.New("worker claim lost to concurrent claimers")

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&workerRow{}); err != nil {
		return fmt.Errorf("migrate workers: %w", err)
	}
	return nil
}

// WithTx returns a store bound to tx so claims and releases commit with the
// caller's session writes.
func (s *GormStore) WithTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx}
}

// Claim marks one claimable worker BUSY and returns it.
//
// Specialist requests only draw from specialists. Other requests prefer
// non-specialists and fall back to specialists. Within a tier the lowest id
// wins. Returns apperr.ErrNotFound when nobody is claimable.
func (s *GormStore) Claim(ctx context.Context, specialistRequired bool) (Worker, error) {
	tiers := []bool{true}
	if !specialistRequired {
		tiers = []bool{false, true}
	}
	for _, specialist := range tiers {
		worker, err := s.claimTier(ctx, specialist)
		if err == nil {
			return worker, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return Worker{}, err
		}
	}
	return Worker{}, apperr.NotFound("no claimable worker (specialist=%t)", specialistRequired)
}

func (s *GormStore) claimTier(ctx context.Context, specialist bool) (Worker, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		var row workerRow
		err := s.db.WithContext(ctx).
			Where("active = ? AND status = ? AND specialist = ?", true, string(StatusAvailable), specialist).
			Order("id ASC").
			Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Worker{}, apperr.ErrNotFound
			}
			return Worker{}, fmt.Errorf("find claimable worker: %w", err)
		}

		now := time.Now().UTC()
		res := s.db.WithContext(ctx).Model(&workerRow{}).
			Where("id = ? AND status = ? AND active = ?", row.ID, string(StatusAvailable), true).
			Updates(map[string]any{
				"status":     string(StatusBusy),
				"updated_at": now,
			})
		if res.Error != nil {
			return Worker{}, fmt.Errorf("claim worker %d: %w", row.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			row.Status = string(StatusBusy)
			row.UpdatedAt = now
			return row.toRecord(), nil
		}
	}
	return Worker{}, ErrClaimContention
}

// Release puts a worker back to AVAILABLE. Releasing an AVAILABLE worker is a no-op.
func (s *GormStore) Release(ctx context.Context, workerID uint) error {
	res := s.db.WithContext(ctx).Model(&workerRow{}).
		Where("id = ?", workerID).
		Updates(map[string]any{
			"status":     string(StatusAvailable),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("release worker %d: %w", workerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("worker %d", workerID)
	}
	return nil
}

func (s *GormStore) Create(ctx context.Context, in NewWorker) (Worker, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return Worker{}, apperr.Validation("name is required")
	}
	if !validEmail(email) {
		return Worker{}, apperr.Validation("a valid email is required")
	}
	status := StatusAvailable
	if strings.TrimSpace(in.Status) != "" {
		parsed, ok := ParseStatus(in.Status)
		if !ok || parsed == StatusBusy {
			return Worker{}, apperr.Validation("status must be AVAILABLE or OFFLINE")
		}
		status = parsed
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	now := time.Now().UTC()
	row := workerRow{
		Name:       name,
		Email:      email,
		Specialist: in.Specialist,
		Status:     string(status),
		Active:     active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if dbpkg.IsDuplicateKey(err) {
			return Worker{}, apperr.AlreadyExists("worker with email %s", email)
		}
		return Worker{}, fmt.Errorf("create worker: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) Get(ctx context.Context, id uint) (Worker, error) {
	var row workerRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Worker{}, apperr.NotFound("worker %d", id)
		}
		return Worker{}, fmt.Errorf("get worker: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) GetByEmail(ctx context.Context, email string) (Worker, error) {
	email = normalizeEmail(email)
	var row workerRow
	if err := s.db.WithContext(ctx).Where("email = ?", email).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Worker{}, apperr.NotFound("worker %s", email)
		}
		return Worker{}, fmt.Errorf("get worker by email: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) List(ctx context.Context) ([]Worker, error) {
	var rows []workerRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	out := make([]Worker, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

func (s *GormStore) Update(ctx context.Context, id uint, patch WorkerPatch) (Worker, error) {
	updates := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Worker{}, apperr.Validation("name must not be blank")
		}
		updates["name"] = name
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if !validEmail(email) {
			return Worker{}, apperr.Validation("a valid email is required")
		}
		updates["email"] = email
	}
	if patch.Specialist != nil {
		updates["specialist"] = *patch.Specialist
	}
	if patch.Active != nil {
		updates["active"] = *patch.Active
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}
	updates["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&workerRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if dbpkg.IsDuplicateKey(res.Error) {
			return Worker{}, apperr.AlreadyExists("worker with email %v", updates["email"])
		}
		return Worker{}, fmt.Errorf("update worker: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Worker{}, apperr.NotFound("worker %d", id)
	}
	return s.Get(ctx, id)
}

// SetPresence lets a worker go AVAILABLE or OFFLINE. A BUSY worker is in a
// session and must end it first.
func (s *GormStore) SetPresence(ctx context.Context, email string, status Status) (Worker, error) {
	if status != StatusAvailable && status != StatusOffline {
		return Worker{}, apperr.Validation("presence must be AVAILABLE or OFFLINE")
	}
	email = normalizeEmail(email)
	res := s.db.WithContext(ctx).Model(&workerRow{}).
		Where("email = ? AND status IN ?", email, []string{string(StatusAvailable), string(StatusOffline)}).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return Worker{}, fmt.Errorf("set presence: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.GetByEmail(ctx, email)
		if err != nil {
			return Worker{}, err
		}
		return Worker{}, apperr.InvalidState("worker %d is %s", current.ID, current.Status)
	}
	return s.GetByEmail(ctx, email)
}

func (s *GormStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&workerRow{}).Where("active = ?", true).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count active workers: %w", err)
	}
	return n, nil
}
