package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/homedash/internal/model"
)

// ProblemBody はAPIエラーレスポンスのボディ。
type ProblemBody struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// WriteProblem はAPIErrorをproblem+json形式で書き込む。
func WriteProblem(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(ProblemBody{
		Title:  apiErr.Title,
		Status: apiErr.Status,
		Detail: apiErr.Detail,
	})
}

// WriteInternalServerError は内部サーバーエラーのレスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteProblem(w, model.NewInternalError())
}
