package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/example/shopfront/internal/datamodels/user"
)

type userRepo struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) user.Repository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, user.ErrNotFound)
	}
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, role, username string) (*user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND username = ?", role, username).
		First(&u).Error
	if err != nil {
		return nil, notFound(err, user.ErrNotFound)
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *user.User) error {
	err := r.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return user.ErrExists
	}
	return err
}
