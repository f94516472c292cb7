package api

import "github.com/gin-gonic/gin"

// AbortWithError writes an APIError body and stops the handler chain
func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	AbortWithMessage(ctx, status, code, "", err)
}

// AbortWithMessage is AbortWithError with a message separate from the error detail
func AbortWithMessage(ctx *gin.Context, status int, code, message string, err error) {
	ctx.Abort()
	if err != nil {
		ctx.Error(err) //nolint:errcheck
	}
	ctx.PureJSON(status, NewAPIError(code, message, err))
}
