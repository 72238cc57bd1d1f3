package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScopeEveryone — общий план семьи (виден всем профилям).
const ScopeEveryone = "everyone"

// Meal types in canonical order.
const (
	MealBreakfast      = "breakfast"
	MealMorningSnack   = "morning_snack"
	MealLunch          = "lunch"
	MealAfternoonSnack = "afternoon_snack"
	MealDinner         = "dinner"
	MealEveningSnack   = "evening_snack"
)

// MealTypes lists meal types in canonical order.
var MealTypes = []string{
	MealBreakfast,
	MealMorningSnack,
	MealLunch,
	MealAfternoonSnack,
	MealDinner,
	MealEveningSnack,
}

// MealOrder returns the canonical position of mealType, or len(MealTypes) if unknown.
func MealOrder(mealType string) int {
	for i, m := range MealTypes {
		if m == mealType {
			return i
		}
	}
	return len(MealTypes)
}

// Adherence statuses as persisted. Pending is never stored.
const (
	StatusPending  = "pending"
	StatusPrepared = "prepared"
	StatusMissed   = "missed"
)

// Recipe info generation statuses.
const (
	RecipeFresh         = "fresh"
	RecipeStaleFallback = "stale-fallback"
)

var (
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("duplicate")
	// ErrEntryGone is returned when an adherence write references a deleted entry.
	ErrEntryGone = errors.New("plan entry gone")
)

// Store объединяет все хранилища одного бэкенда.
type Store interface {
	PlanEntriesStorage
	AdherenceStorage
	RecipeCacheStorage
	ProfilesStorage
	AIModelsStorage
	ActivityStorage
	AdminStorage
	ExportsStorage

	// Close закрывает соединение (для Postgres/SQLite)
	Close() error
}

// PlanKey — идентичность записи плана.
type PlanKey struct {
	PlanDate string // YYYY-MM-DD
	MealType string
	Scope    string
}

// PlanEntry — запланированное блюдо на дату и приём пищи.
type PlanEntry struct {
	ID          uuid.UUID
	Scope       string // ScopeEveryone или UUID профиля
	PlanDate    string // YYYY-MM-DD
	MealType    string
	DishName    string
	Description string
	Calories    float64
	ProteinG    float64
	CarbsG      float64
	FatG        float64
	FiberG      float64
	Revision    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e PlanEntry) Key() PlanKey {
	return PlanKey{PlanDate: e.PlanDate, MealType: e.MealType, Scope: e.Scope}
}

// SameDish reports whether two entries describe the same dish (name + description).
func SameDish(a, b PlanEntry) bool {
	return strings.TrimSpace(a.DishName) == strings.TrimSpace(b.DishName) &&
		strings.TrimSpace(a.Description) == strings.TrimSpace(b.Description)
}

// SameContent reports whether dish and nutrition are identical.
func SameContent(a, b PlanEntry) bool {
	return SameDish(a, b) &&
		a.Calories == b.Calories &&
		a.ProteinG == b.ProteinG &&
		a.CarbsG == b.CarbsG &&
		a.FatG == b.FatG &&
		a.FiberG == b.FiberG
}

// SortPlanEntries orders by date, canonical meal order, then scope.
func SortPlanEntries(entries []PlanEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.PlanDate != b.PlanDate {
			return a.PlanDate < b.PlanDate
		}
		if oa, ob := MealOrder(a.MealType), MealOrder(b.MealType); oa != ob {
			return oa < ob
		}
		return a.Scope < b.Scope
	})
}

// UpsertOutcome — результат записи в хранилище.
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// PlanUpsertResult describes what an upsert did to the store.
type PlanUpsertResult struct {
	Entry          PlanEntry
	Outcome        UpsertOutcome
	DishChanged    bool
	AdherenceReset int // число удалённых записей выполнения
}

// PlanStats — агрегаты по плану.
type PlanStats struct {
	Entries int
	Days    int
}

// PlanEntriesStorage — хранилище плана питания.
type PlanEntriesStorage interface {
	// UpsertPlanEntry атомарно создаёт или заменяет запись по ключу (date, meal_type, scope).
	// Если блюдо (название + описание) изменилось, записи выполнения удаляются.
	UpsertPlanEntry(ctx context.Context, entry PlanEntry, now time.Time) (PlanUpsertResult, error)

	// GetPlanEntry возвращает запись по ключу
	GetPlanEntry(ctx context.Context, key PlanKey) (PlanEntry, bool, error)

	// GetPlanEntryByID возвращает запись по ID
	GetPlanEntryByID(ctx context.Context, id uuid.UUID) (PlanEntry, bool, error)

	// ListPlanEntries возвращает записи за период [from, to]; пустой scopes = все
	ListPlanEntries(ctx context.Context, from, to string, scopes []string) ([]PlanEntry, error)

	// DeletePlanEntry удаляет запись и её отметки
	DeletePlanEntry(ctx context.Context, key PlanKey) (bool, error)

	// DeletePlanEntryByID удаляет запись по ID и её отметки
	DeletePlanEntryByID(ctx context.Context, id uuid.UUID) (bool, error)

	// DeletePlanEntriesRange удаляет все записи за период, возвращает количество
	DeletePlanEntriesRange(ctx context.Context, from, to string, scopes []string) (int, error)

	// NearestPlanDate возвращает ближайшую к date дату с планом
	NearestPlanDate(ctx context.Context, date string, scopes []string) (string, bool, error)

	// PlanStats возвращает число записей и различных дней
	PlanStats(ctx context.Context) (PlanStats, error)
}

// AdherenceRecord — отметка пользователя по записи плана.
type AdherenceRecord struct {
	EntryID         uuid.UUID
	UserID          string
	Status          string // prepared | missed
	StatusChangedAt time.Time
	Revision        int64
}

// AdherenceStorage — хранилище отметок.
type AdherenceStorage interface {
	// SetAdherence атомарно записывает статус; возвращает новую и предыдущую запись (если была).
	// ErrEntryGone если запись плана отсутствует.
	SetAdherence(ctx context.Context, entryID uuid.UUID, userID, status string, now time.Time) (AdherenceRecord, *AdherenceRecord, error)

	// GetAdherence возвращает отметку
	GetAdherence(ctx context.Context, entryID uuid.UUID, userID string) (AdherenceRecord, bool, error)

	// ListAdherence возвращает отметки пользователя для набора записей
	ListAdherence(ctx context.Context, userID string, entryIDs []uuid.UUID) (map[uuid.UUID]AdherenceRecord, error)

	// DeleteAdherence удаляет отметку (запись снова pending)
	DeleteAdherence(ctx context.Context, entryID uuid.UUID, userID string) (bool, error)
}

// RecipeInfo — кэшированное описание рецепта по сигнатуре блюда.
type RecipeInfo struct {
	Signature        string
	DishName         string
	Description      string
	GeneratedText    string
	NutritionSummary string
	Status           string // fresh | stale-fallback
	SourceModel      string
	LastError        string
	GeneratedAt      time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the entry must be regenerated at now.
func (r RecipeInfo) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// RecipeCacheStorage — кэш рецептов и лизы генерации.
type RecipeCacheStorage interface {
	// GetRecipeInfo возвращает запись кэша (включая просроченные)
	GetRecipeInfo(ctx context.Context, signature string) (RecipeInfo, bool, error)

	// PutRecipeInfo сохраняет запись кэша (upsert по сигнатуре)
	PutRecipeInfo(ctx context.Context, info RecipeInfo) error

	// ExpireRecipeInfo делает запись просроченной
	ExpireRecipeInfo(ctx context.Context, signature string, now time.Time) (bool, error)

	// CountRecipeInfos возвращает число записей кэша
	CountRecipeInfos(ctx context.Context) (int, error)

	// AcquireRecipeLease берёт лиз, если он свободен, просрочен или уже принадлежит owner
	AcquireRecipeLease(ctx context.Context, signature, owner string, now time.Time, ttl time.Duration) (bool, error)

	// ReleaseRecipeLease освобождает лиз владельца
	ReleaseRecipeLease(ctx context.Context, signature, owner string) error
}

// Profile — член семьи.
type Profile struct {
	ID         uuid.UUID
	Name       string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// ProfilesStorage — интерфейс для работы с профилями
type ProfilesStorage interface {
	// ListProfiles возвращает все профили (по имени)
	ListProfiles(ctx context.Context) ([]Profile, error)

	// GetProfile возвращает профиль по ID
	GetProfile(ctx context.Context, id uuid.UUID) (Profile, bool, error)

	// CreateProfile создаёт новый профиль
	CreateProfile(ctx context.Context, profile *Profile) error

	// TouchProfile обновляет last_seen_at
	TouchProfile(ctx context.Context, id uuid.UUID, now time.Time) error

	// DeleteProfile удаляет профиль, его план и отметки
	DeleteProfile(ctx context.Context, id uuid.UUID) (bool, error)
}

// AIModel — модель генерации рецептов.
type AIModel struct {
	ID          uuid.UUID
	Provider    string
	ModelID     string
	DisplayName string
	IsDefault   bool
	CreatedAt   time.Time
}

// AIModelsStorage — реестр моделей.
type AIModelsStorage interface {
	ListAIModels(ctx context.Context) ([]AIModel, error)
	GetAIModel(ctx context.Context, id uuid.UUID) (AIModel, bool, error)
	GetDefaultAIModel(ctx context.Context) (AIModel, bool, error)

	// CreateAIModel добавляет модель; ErrDuplicate при повторе (provider, model_id).
	// Если IsDefault, снимает флаг с остальных.
	CreateAIModel(ctx context.Context, model *AIModel) error

	DeleteAIModel(ctx context.Context, id uuid.UUID) (bool, error)

	// SetDefaultAIModel делает модель единственной по умолчанию
	SetDefaultAIModel(ctx context.Context, id uuid.UUID) (bool, error)
}

// ActivityEvent — запись журнала действий.
type ActivityEvent struct {
	ID        uuid.UUID
	ProfileID *uuid.UUID
	Action    string
	Details   string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// ActivityStorage — журнал действий.
type ActivityStorage interface {
	AddActivity(ctx context.Context, event *ActivityEvent) error

	// ListActivity возвращает события (новые первыми) и общее число
	ListActivity(ctx context.Context, profileID *uuid.UUID, limit, offset int) ([]ActivityEvent, int, error)

	// CountActivitySince возвращает число событий начиная с since
	CountActivitySince(ctx context.Context, since time.Time) (int, error)
}

// AdminAccount — учётная запись администратора.
type AdminAccount struct {
	Username     string
	PasswordHash string
	UpdatedAt    time.Time
}

// AdminStorage — хранилище администраторов.
type AdminStorage interface {
	GetAdmin(ctx context.Context, username string) (AdminAccount, bool, error)

	// CreateAdminIfMissing создаёт учётку, если её нет; true если создана
	CreateAdminIfMissing(ctx context.Context, account AdminAccount) (bool, error)

	UpdateAdminPassword(ctx context.Context, username, passwordHash string, now time.Time) error
}

// ExportMeta — метаданные выгрузки выполнения.
type ExportMeta struct {
	ID        uuid.UUID
	ProfileID uuid.UUID
	Format    string  // "pdf" or "csv"
	FromDate  string  // YYYY-MM-DD
	ToDate    string  // YYYY-MM-DD
	ObjectKey *string // S3 object key (NULL for inline mode)
	SizeBytes int64
	CreatedAt time.Time
	Data      []byte // Only used in inline mode
}

// ExportsStorage — интерфейс для работы с выгрузками
type ExportsStorage interface {
	CreateExport(ctx context.Context, export *ExportMeta) error
	GetExport(ctx context.Context, id uuid.UUID) (ExportMeta, bool, error)
	ListExports(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]ExportMeta, error)
	DeleteExport(ctx context.Context, id uuid.UUID) (bool, error)
}

// ScopesFor returns the scopes visible to a profile: everyone plus its own.
func ScopesFor(userID string) []string {
	if userID == "" || userID == ScopeEveryone {
		return []string{ScopeEveryone}
	}
	return []string{ScopeEveryone, userID}
}
