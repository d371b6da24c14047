package controller

import (
	"cardofun_backend/internal/config"
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/service"
	"cardofun_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

// UserController serves profiles, the discovery listing and friend requests.
type UserController struct {
	FriendshipService *service.FriendshipService
	Config            *config.Config
}

func NewUserController(friendshipService *service.FriendshipService, cfg *config.Config) *UserController {
	return &UserController{
		FriendshipService: friendshipService,
		Config:            cfg,
	}
}

type RespondFriendRequest struct {
	Status string `json:"status" binding:"required"`
}

type UserProfileResponse struct {
	model.UserListItem
	Introduction string               `json:"introduction"`
	Photos       []model.UserPhoto    `json:"photos"`
	Languages    []model.UserLanguage `json:"languages"`
}

// GetUsers is the discovery listing.
// GET /api/users?sex=&ageMin=&ageMax=&cityId=&country=&languageLearning=&languageSpeaking=
func (ctrl *UserController) GetUsers(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	filter, err := userFilter(c, claims.UserID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	p, err := pageParams(c, ctrl.Config.Pagination)
	if err != nil {
		util.Fail(c, err)
		return
	}

	page, err := ctrl.FriendshipService.GetUsers(c.Request.Context(), filter, p)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.SuccessPage(c, page)
}

func (ctrl *UserController) GetUser(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	userID, err := util.ParseID(c.Param("userId"))
	if err != nil {
		util.Fail(c, err)
		return
	}

	user, friendship, err := ctrl.FriendshipService.GetUser(c.Request.Context(), claims.UserID, userID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, UserProfileResponse{
		UserListItem: model.NewUserListItem(user, time.Now(), friendship),
		Introduction: user.Introduction,
		Photos:       user.Photos,
		Languages:    user.Languages,
	})
}

// GetFriends lists counterparts by friendship status and direction.
// GET /api/users/:userId/friends?status=accepted,pending&owned=
func (ctrl *UserController) GetFriends(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	filter, err := friendFilter(c, claims.UserID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	p, err := pageParams(c, ctrl.Config.Pagination)
	if err != nil {
		util.Fail(c, err)
		return
	}

	page, err := ctrl.FriendshipService.GetFriends(c.Request.Context(), filter, p)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.SuccessPage(c, page)
}

// SendFriendRequest POST /api/users/:userId/friends/:targetId
func (ctrl *UserController) SendFriendRequest(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	targetID, err := util.ParseID(c.Param("targetId"))
	if err != nil {
		util.Fail(c, err)
		return
	}

	req, err := ctrl.FriendshipService.SendFriendRequest(c.Request.Context(), claims.UserID, targetID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, req)
}

// RespondFriendRequest PUT /api/users/:userId/friends/:targetId, where targetId sent the request.
func (ctrl *UserController) RespondFriendRequest(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	fromUserID, err := util.ParseID(c.Param("targetId"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	var body RespondFriendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		util.BadRequest(c, "status is required")
		return
	}
	status, err := model.ParseFriendshipStatus(body.Status)
	if err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	req, err := ctrl.FriendshipService.RespondFriendRequest(c.Request.Context(), claims.UserID, fromUserID, status)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, req)
}
