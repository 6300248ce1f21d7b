package rate

import (
	"context"
	"fmt"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Upsert(ctx context.Context, rr *RouteRate) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if rr.ID == "" {
		rr.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Save(rr).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (r *Repo) ListAll(ctx context.Context) ([]RouteRate, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rates []RouteRate
	if err := r.db.WithContext(ctx).Order("origin ASC, destination ASC").Find(&rates).Error; err != nil {
		return nil, apperr.Storage(err)
	}
	return rates, nil
}

// LoadTable 把整张线路价表读进内存。线路条目很少（个位数），整表加载即可。
func (r *Repo) LoadTable(ctx context.Context) (*Table, error) {
	rates, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return NewTable(rates), nil
}

// SeedDefaults 写入缺失的标准线路价（幂等，已有的不动）。
func (r *Repo) SeedDefaults(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	defaults := []RouteRate{
		{Origin: "FedEx Memphis", Destination: "Fleet Memphis", Amount: 200.00, Miles: 95},
		{Origin: "Memphis", Destination: "FedEx Indy", Amount: 1960.00, Miles: 933},
		{Origin: "Memphis", Destination: "Chicago", Amount: 2373.00, Miles: 1130},
	}
	db := r.db.WithContext(ctx)
	for _, d := range defaults {
		var existing RouteRate
		err := db.Where("origin = ? AND destination = ?", d.Origin, d.Destination).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return apperr.Storage(err)
		}
		d.ID = uuid.NewString()
		if err := db.Create(&d).Error; err != nil {
			return apperr.Storage(err)
		}
	}
	return nil
}
