// Package link 管理临时下载链接
// 令牌只保存在进程内存中，服务重启后全部失效
package link

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrInvalidToken 令牌未登记
var ErrInvalidToken = errors.New("invalid download token")

// maxIssueAttempts 生成令牌发生碰撞时的最大重试次数
const maxIssueAttempts = 8

// Registry 令牌到文件ID的映射
type Registry interface {
	// Issue 为文件生成一个新令牌，同一文件可以持有多个令牌
	Issue(fileID string) (string, error)
	// Resolve 查询令牌对应的文件ID，令牌不会因此失效
	Resolve(token string) (string, error)
	// Len 当前登记的令牌数量
	Len() int
}

type memoryRegistry struct {
	links sync.Map // token -> fileID
	count atomic.Int64
}

// NewMemoryRegistry 创建基于内存的令牌登记表
func NewMemoryRegistry() Registry {
	return &memoryRegistry{}
}

func (r *memoryRegistry) Issue(fileID string) (string, error) {
	for i := 0; i < maxIssueAttempts; i++ {
		token, err := uuid.NewRandom()
		if err != nil {
			return "", err
		}
		if _, loaded := r.links.LoadOrStore(token.String(), fileID); !loaded {
			r.count.Add(1)
			return token.String(), nil
		}
	}
	return "", errors.New("failed to generate a unique download token")
}

func (r *memoryRegistry) Resolve(token string) (string, error) {
	v, ok := r.links.Load(token)
	if !ok {
		return "", ErrInvalidToken
	}
	return v.(string), nil
}

func (r *memoryRegistry) Len() int {
	return int(r.count.Load())
}
