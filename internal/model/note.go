// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は外部IdPが保証したユーザー識別子を表す。
// ローカルのユーザーテーブルは存在せず、メールアドレスをそのままユーザーキーとして扱う。
type Identity struct {
	Email string
}

// Note はユーザーが作成した短いテキストメモを表す。
// ID、CreatedAt、OwnerEmailはサーバー側で設定し、作成後は変更しない。
type Note struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	OwnerEmail string    `json:"ownerEmail"`
}
