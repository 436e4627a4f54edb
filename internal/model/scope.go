package model

import (
	"fmt"
	"strconv"
)

// GlobalScopeKey 是不区分文档与用户时的索引键。
const GlobalScopeKey = "global"

// Scope 描述一次检索的范围：单个文档，或某个用户的全部文档。
// DocumentID 与 OwnerID 都为 0 时表示所有用户的全部文档。
type Scope struct {
	DocumentID uint
	OwnerID    uint
}

// DocumentScope 返回单个文档的范围。
func DocumentScope(documentID uint) Scope {
	return Scope{DocumentID: documentID}
}

// OwnerScope 返回某个用户全部文档的范围。
func OwnerScope(ownerID uint) Scope {
	return Scope{OwnerID: ownerID}
}

// IsDocument 判断是否为单文档范围。
func (s Scope) IsDocument() bool {
	return s.DocumentID != 0
}

// Key 返回索引持久化使用的键。
func (s Scope) Key() string {
	switch {
	case s.DocumentID != 0:
		return strconv.FormatUint(uint64(s.DocumentID), 10)
	case s.OwnerID != 0:
		return fmt.Sprintf("%s_u%d", GlobalScopeKey, s.OwnerID)
	default:
		return GlobalScopeKey
	}
}

