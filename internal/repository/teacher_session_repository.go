package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrTeacherSessionNotFound = errors.New("teacher session not found")

// Mutation lists what a MutationFunc changed on the loaded document. Columns
// are written by the first statement; the section array by the second.
type Mutation struct {
	Columns  []string
	Sections bool
}

type MutationFunc func(doc *domain.TeacherSession) (Mutation, error)

// RefFilter narrows a taxonomy reference column. An applied filter with no
// ids matches nothing.
type RefFilter struct {
	Applied bool
	IDs     []string
}

// SessionQuery filters sessions. RangeOnLoginTime bounds login_time instead
// of login_at.
type SessionQuery struct {
	Username         string
	CourseClass      RefFilter
	Section          RefFilter
	Subject          RefFilter
	Active           *bool
	LoginFrom        *time.Time
	LoginTo          *time.Time
	RangeOnLoginTime bool
	Text             string
	TextRefIDs       []string
	SortBy           string
	SortDesc         bool
	IncludeDeleted   bool
}

type TeacherSessionRepository interface {
	Create(ctx context.Context, s *domain.TeacherSession) error
	FindByID(ctx context.Context, id string, includeDeleted bool) (*domain.TeacherSession, error)
	FindLatestByUsername(ctx context.Context, username string, from, to *time.Time) (*domain.TeacherSession, error)
	Update(ctx context.Context, id string, fn MutationFunc) (*domain.TeacherSession, error)
	Rewrite(ctx context.Context, id string, fn MutationFunc) (*domain.TeacherSession, error)
	ListPaged(ctx context.Context, q SessionQuery, page PageRequest) (PageResult[domain.TeacherSession], error)
	ListAll(ctx context.Context, q SessionQuery, limit int) ([]domain.TeacherSession, error)
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.TeacherSession, error)
	SoftDelete(ctx context.Context, id, deletedBy string) error
}

type GormTeacherSessionRepository struct {
	db               *gorm.DB
	maxDocumentBytes int
}

func NewTeacherSessionRepository(db *gorm.DB, maxDocumentBytes int) TeacherSessionRepository {
	if maxDocumentBytes <= 0 {
		maxDocumentBytes = MaxDocumentBytes
	}
	return &GormTeacherSessionRepository{db: db, maxDocumentBytes: maxDocumentBytes}
}

var sessionSortColumns = map[string]string{
	"loginAt":      "login_at",
	"loginTime":    "login_time",
	"logoutAt":     "logout_at",
	"lastActiveAt": "last_active_at",
	"username":     "username",
	"activeTime":   "active_time",
	"idleTime":     "idle_time",
	"createdAt":    "created_at",
}

// IsSortableField reports whether name can be used as a sort key.
func IsSortableField(name string) bool {
	_, ok := sessionSortColumns[name]
	return ok
}

func (r *GormTeacherSessionRepository) Create(ctx context.Context, s *domain.TeacherSession) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "teacher_session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "teacher_session", "create", "success")
	return nil
}

func (r *GormTeacherSessionRepository) FindByID(ctx context.Context, id string, includeDeleted bool) (*domain.TeacherSession, error) {
	var s domain.TeacherSession
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if !includeDeleted {
		q = q.Where("deleted_status = ?", false)
	}
	if err := q.First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "teacher_session", "find_by_id", "not_found")
			return nil, ErrTeacherSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "teacher_session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "teacher_session", "find_by_id", "success")
	return &s, nil
}

func (r *GormTeacherSessionRepository) FindLatestByUsername(ctx context.Context, username string, from, to *time.Time) (*domain.TeacherSession, error) {
	var s domain.TeacherSession
	q := r.db.WithContext(ctx).Where("username = ? AND deleted_status = ?", username, false)
	if from != nil {
		q = q.Where("login_time >= ?", *from)
	}
	if to != nil {
		q = q.Where("login_time <= ?", *to)
	}
	if err := q.Order("login_time DESC").First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "teacher_session", "find_latest_by_username", "not_found")
			return nil, ErrTeacherSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "teacher_session", "find_latest_by_username", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "teacher_session", "find_latest_by_username", "success")
	return &s, nil
}

// Update applies fn to the locked document and commits it, refusing any
// result that would exceed the document ceiling.
func (r *GormTeacherSessionRepository) Update(ctx context.Context, id string, fn MutationFunc) (*domain.TeacherSession, error) {
	return r.mutate(ctx, "update", id, fn, true)
}

// Rewrite is Update without the ceiling check. It exists for shrinking an
// oversized document.
func (r *GormTeacherSessionRepository) Rewrite(ctx context.Context, id string, fn MutationFunc) (*domain.TeacherSession, error) {
	return r.mutate(ctx, "rewrite", id, fn, false)
}

func (r *GormTeacherSessionRepository) mutate(ctx context.Context, op, id string, fn MutationFunc, enforceLimit bool) (*domain.TeacherSession, error) {
	var out *domain.TeacherSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc domain.TeacherSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND deleted_status = ?", id, false).
			First(&doc).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTeacherSessionNotFound
			}
			return err
		}
		m, err := fn(&doc)
		if err != nil {
			return err
		}
		if enforceLimit {
			size, err := DocumentSize(&doc)
			if err != nil {
				return err
			}
			if size > r.maxDocumentBytes {
				return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrDocumentTooLarge, size, r.maxDocumentBytes)
			}
		}
		doc.UpdatedAt = time.Now().UTC()
		if len(m.Columns) > 0 || m.Sections {
			cols := append(append([]string(nil), m.Columns...), "updated_at")
			if err := tx.Model(&doc).Select(cols).Updates(&doc).Error; err != nil {
				return err
			}
		}
		if m.Sections {
			if err := tx.Model(&doc).Update("sections", doc.Sections).Error; err != nil {
				return err
			}
		}
		out = &doc
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTeacherSessionNotFound):
			observability.RecordRepositoryOperation(ctx, "teacher_session", op, "not_found")
		case IsDocumentTooLarge(err):
			observability.RecordRepositoryOperation(ctx, "teacher_session", op, "too_large")
		default:
			observability.RecordRepositoryOperation(ctx, "teacher_session", op, "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "teacher_session", op, "success")
	return out, nil
}

func (r *GormTeacherSessionRepository) ListPaged(ctx context.Context, q SessionQuery, page PageRequest) (PageResult[domain.TeacherSession], error) {
	page = normalizePageRequest(page)
	var total int64
	if err := r.applyQuery(r.db.WithContext(ctx).Model(&domain.TeacherSession{}), q).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "teacher_session", "list_paged", "error")
		return PageResult[domain.TeacherSession]{}, err
	}
	offset := resolveOffset(page, total)
	var sessions []domain.TeacherSession
	err := r.applyQuery(r.db.WithContext(ctx).Model(&domain.TeacherSession{}), q).
		Order(sessionOrder(q)).
		Offset(offset).
		Limit(page.PageSize).
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "teacher_session", "list_paged", "error")
		return PageResult[domain.TeacherSession]{}, err
	}
	observability.RecordRepositoryOperation(ctx, "teacher_session", "list_paged", "success")
	return buildPageResult(sessions, total, offset, page.PageSize), nil
}

func (r *GormTeacherSessionRepository) ListAll(ctx context.Context, q SessionQuery, limit int) ([]domain.TeacherSession, error) {
	var sessions []domain.TeacherSession
	tx := r.applyQuery(r.db.WithContext(ctx).Model(&domain.TeacherSession{}), q).Order(sessionOrder(q))
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&sessions).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "teacher_session", "list_all", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "teacher_session", "list_all", "success")
	return sessions, nil
}

// FindStale returns open sessions whose login is at or before cutoff.
func (r *GormTeacherSessionRepository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.TeacherSession, error) {
	var sessions []domain.TeacherSession
	tx := r.db.WithContext(ctx).
		Where("active = ? AND deleted_status = ?", true, false).
		Where("logout_at IS NULL AND logout_time IS NULL").
		Where("(login_time <= ? OR login_at <= ?)", cutoff, cutoff).
		Order("login_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&sessions).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "teacher_session", "find_stale", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "teacher_session", "find_stale", "success")
	return sessions, nil
}

func (r *GormTeacherSessionRepository) SoftDelete(ctx context.Context, id, deletedBy string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.TeacherSession{}).
		Where("id = ? AND deleted_status = ?", id, false).
		Updates(map[string]any{
			"deleted_status": true,
			"deleted_by":     deletedBy,
			"deleted_time":   now,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "teacher_session", "soft_delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "teacher_session", "soft_delete", "not_found")
		return ErrTeacherSessionNotFound
	}
	observability.RecordRepositoryOperation(ctx, "teacher_session", "soft_delete", "success")
	return nil
}

func (r *GormTeacherSessionRepository) applyQuery(tx *gorm.DB, q SessionQuery) *gorm.DB {
	if !q.IncludeDeleted {
		tx = tx.Where("deleted_status = ?", false)
	}
	if v := strings.TrimSpace(q.Username); v != "" {
		tx = tx.Where("LOWER(username) LIKE ? ESCAPE '\\'", likePattern(v))
	}
	tx = applyRefFilter(tx, "course_class_ref", q.CourseClass)
	tx = applyRefFilter(tx, "section_ref", q.Section)
	tx = applyRefFilter(tx, "subject_ref", q.Subject)
	if q.Active != nil {
		tx = tx.Where("active = ?", *q.Active)
	}
	loginCol := "login_at"
	if q.RangeOnLoginTime {
		loginCol = "login_time"
	}
	if q.LoginFrom != nil {
		tx = tx.Where(loginCol+" >= ?", *q.LoginFrom)
	}
	if q.LoginTo != nil {
		tx = tx.Where(loginCol+" <= ?", *q.LoginTo)
	}
	if v := strings.TrimSpace(q.Text); v != "" {
		pattern := likePattern(v)
		cond := r.db.Where("LOWER(username) LIKE ? ESCAPE '\\'", pattern).
			Or("LOWER(session_token) LIKE ? ESCAPE '\\'", pattern).
			Or("LOWER(device_id) LIKE ? ESCAPE '\\'", pattern)
		if len(q.TextRefIDs) > 0 {
			cond = cond.Or("course_class_ref IN ?", q.TextRefIDs).
				Or("section_ref IN ?", q.TextRefIDs).
				Or("subject_ref IN ?", q.TextRefIDs)
		}
		tx = tx.Where(cond)
	}
	return tx
}

func applyRefFilter(tx *gorm.DB, column string, f RefFilter) *gorm.DB {
	if !f.Applied {
		return tx
	}
	if len(f.IDs) == 0 {
		return tx.Where("1 = 0")
	}
	return tx.Where(column+" IN ?", f.IDs)
}

func sessionOrder(q SessionQuery) string {
	col, ok := sessionSortColumns[q.SortBy]
	if !ok {
		col = "login_at"
	}
	if q.SortDesc {
		return col + " DESC, id DESC"
	}
	return col + " ASC, id ASC"
}

func likePattern(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
	return "%" + v + "%"
}
