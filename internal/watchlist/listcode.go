// Package watchlist 是共享片单的核心逻辑：列表码解析、条目视图、
// 过滤排序以及平台登记表。
package watchlist

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/user/cinelist/internal/model"
)

// MinCodeLength 列表码最短字符数（去除首尾空白后）
const MinCodeLength = 3

// ResolveCode 将用户输入的列表码规范化为分区键：去除首尾空白并转为大写
func ResolveCode(code string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(code))
	if utf8.RuneCountInString(key) < MinCodeLength {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidCode, code)
	}
	return key, nil
}
