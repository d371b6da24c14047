package controller

import (
	"cardofun_backend/internal/config"
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/service"
	"cardofun_backend/internal/util"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

type MessageController struct {
	MessageService *service.MessageService
	Config         *config.Config
}

func NewMessageController(messageService *service.MessageService, cfg *config.Config) *MessageController {
	return &MessageController{
		MessageService: messageService,
		Config:         cfg,
	}
}

type CreateMessageRequest struct {
	RecipientID uint   `json:"recipientId" form:"recipientId" binding:"required"`
	Text        string `json:"text" form:"text"`
}

// GetDialogues lists the dialogue, unread or thread container.
// GET /api/users/:userId/messages/dialogues?container=&with=
func (ctrl *MessageController) GetDialogues(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	container, err := model.ParseMessageContainer(c.Query("container"))
	if err != nil {
		util.BadRequest(c, err.Error())
		return
	}
	p, err := pageParams(c, ctrl.Config.Pagination)
	if err != nil {
		util.Fail(c, err)
		return
	}

	params := service.DialogueParams{
		UserID:    claims.UserID,
		Container: container,
		Page:      p,
	}
	if with := c.Query("with"); with != "" {
		if params.CounterpartID, err = util.ParseID(with); err != nil {
			util.Fail(c, err)
			return
		}
	}

	page, err := ctrl.MessageService.GetDialogues(c.Request.Context(), params)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.SuccessPage(c, page)
}

// GetThread pages the conversation with :secondUserId and marks what was received as read.
func (ctrl *MessageController) GetThread(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	counterpartID, err := util.ParseID(c.Param("secondUserId"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	p, err := pageParams(c, ctrl.Config.Pagination)
	if err != nil {
		util.Fail(c, err)
		return
	}

	page, err := ctrl.MessageService.GetThread(c.Request.Context(), claims.UserID, counterpartID, p)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.SuccessPage(c, page)
}

func (ctrl *MessageController) GetMessage(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	msg, err := ctrl.MessageService.GetMessage(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, msg)
}

// CreateMessage accepts JSON, or multipart form data with an optional "photo" file.
func (ctrl *MessageController) CreateMessage(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	var req CreateMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		util.BadRequest(c, "recipientId is required")
		return
	}

	in := service.CreateMessageInput{
		SenderID:    claims.UserID,
		RecipientID: req.RecipientID,
		Text:        req.Text,
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if fh, err := c.FormFile("photo"); err == nil {
			if fh.Size > util.MaxPhotoSize {
				util.BadRequest(c, fmt.Sprintf("photo exceeds %d bytes", util.MaxPhotoSize))
				return
			}
			f, err := fh.Open()
			if err != nil {
				util.LogInternalError(c, err)
				return
			}
			defer f.Close()

			contentType, err := util.ValidateMimeType(f, []string{util.MimeImage})
			if err != nil {
				util.BadRequest(c, "only image attachments are supported")
				return
			}
			if _, err := f.Seek(0, 0); err != nil {
				util.LogInternalError(c, err)
				return
			}
			in.Photo = &service.PhotoUpload{
				Filename:    fh.Filename,
				ContentType: contentType,
				Size:        fh.Size,
				Reader:      f,
			}
		}
	}

	msg, err := ctrl.MessageService.CreateMessage(c.Request.Context(), in)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Created(c, fmt.Sprintf("/api/users/%d/messages/%s", claims.UserID, msg.ID), msg)
}
