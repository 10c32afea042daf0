package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/kebiao/kebiao/pkg/logger"
)

// ActorHeader 调用方身份请求头
const ActorHeader = "X-Actor"

// Actor 把调用方身份放入上下文，仅用于审计字段，不做鉴权。
// X-Actor 优先；否则取 Bearer 令牌摘要，令牌原文不进入日志和存储
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			actor = tokenDigest(r.Header.Get("Authorization"))
		}
		if actor != "" {
			r = r.WithContext(context.WithValue(r.Context(), logger.ActorKey, actor))
		}
		next.ServeHTTP(w, r)
	})
}

func tokenDigest(authorization string) string {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if token = strings.TrimSpace(token); !ok || token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:6])
}

// ActorFrom 上下文中的调用方身份，没有时为空串
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(logger.ActorKey).(string)
	return actor
}
