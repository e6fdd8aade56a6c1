package review

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/creditkeeper/internal/logging"
	"github.com/dmitrijs2005/creditkeeper/internal/server/config"
)

// FromConfig builds the queue named by cfg.ReviewSinks. The returned closers
// release backend connections.
func FromConfig(ctx context.Context, cfg *config.Config, l logging.Logger) (Queue, []io.Closer, error) {
	var (
		queues  Multi
		closers []io.Closer
	)

	for _, name := range strings.Split(cfg.ReviewSinks, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "log":
			queues = append(queues, NewLogQueue(l))
		case "s3":
			a, err := NewS3Archive(ctx, S3Options{
				Region:       cfg.S3Region,
				AccessKey:    cfg.S3RootUser,
				SecretKey:    cfg.S3RootPassword,
				BaseEndpoint: cfg.S3BaseEndpoint,
				Bucket:       cfg.S3Bucket,
			})
			if err != nil {
				return nil, closers, err
			}
			queues = append(queues, a)
		case "redis":
			q, rdb := NewRedisList(RedisOptions{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
				Key:      cfg.RedisReviewKey,
			})
			queues = append(queues, q)
			closers = append(closers, rdb)
		default:
			return nil, closers, fmt.Errorf("unknown review sink %q", name)
		}
	}

	if len(queues) == 0 {
		return NewLogQueue(l), closers, nil
	}
	if len(queues) == 1 {
		return queues[0], closers, nil
	}
	return queues, closers, nil
}
