package model

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
)

// Embedding 与 Chunk 一一对应，写入后不再修改。
type Embedding struct {
	ChunkID uint   `gorm:"primaryKey;autoIncrement:false" json:"chunkId"`
	Vector  Vector `gorm:"type:mediumblob;not null" json:"vector"`
}

func (Embedding) TableName() string {
	return "embeddings"
}

// Vector 以小端 float32 序列的形式存入 BLOB 列。
type Vector []float32

// Value 实现 driver.Valuer。
func (v Vector) Value() (driver.Value, error) {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

// Scan 实现 sql.Scanner。
func (v *Vector) Scan(src interface{}) error {
	var raw []byte
	switch s := src.(type) {
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	case nil:
		*v = nil
		return nil
	default:
		return fmt.Errorf("unsupported vector column type %T", src)
	}
	if len(raw)%4 != 0 {
		return fmt.Errorf("vector blob length %d is not a multiple of 4", len(raw))
	}
	out := make(Vector, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	*v = out
	return nil
}
