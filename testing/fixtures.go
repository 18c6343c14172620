package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestClickLog inserts an unconverted click log for customerRef created at createdAt
func (tf *TestFixtures) CreateTestClickLog(customerRef string, itemID *string, createdAt time.Time) (*models.ClickLog, error) {
	uid := uuid.NewString()[:12]
	row := &models.ClickLog{
		UID:           uid,
		CustomerRef:   customerRef,
		ProductName:   fmt.Sprintf("Test product %d", rand.Intn(100000)),
		ProductItemID: itemID,
		OriginalURL:   "https://articulo.mercadolibre.com.mx/item",
		TrackedURL:    "https://go.example.com/r/" + uid,
		CreatedAt:     createdAt.UTC(),
	}
	if err := tf.DB.DB.Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create click log: %w", err)
	}
	return row, nil
}

// CreateTestClickLogs inserts n unconverted click logs one minute apart, oldest first
func (tf *TestFixtures) CreateTestClickLogs(customerRef string, n int, start time.Time) ([]*models.ClickLog, error) {
	rows := make([]*models.ClickLog, 0, n)
	for i := 0; i < n; i++ {
		row, err := tf.CreateTestClickLog(customerRef, utils.ToPtr(fmt.Sprintf("MLM%d", 100+i)), start.Add(time.Duration(i)*time.Minute))
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
