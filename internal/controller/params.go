package controller

import (
	"cardofun_backend/internal/config"
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/repository"
	"cardofun_backend/internal/util"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func pageParams(c *gin.Context, cfg config.PaginationConfig) (util.PageParams, error) {
	pageNumber, err := strconv.Atoi(c.DefaultQuery("pageNumber", "1"))
	if err != nil {
		return util.PageParams{}, util.NewValidationError("pageNumber must be a number")
	}
	pageSize := cfg.DefaultPageSize
	if v := c.Query("pageSize"); v != "" {
		if pageSize, err = strconv.Atoi(v); err != nil {
			return util.PageParams{}, util.NewValidationError("pageSize must be a number")
		}
	}
	p := util.NewPageParams(pageNumber, pageSize)
	return p, p.Validate(cfg.MaxPageSize)
}

// userFilter reads the demographic filters; absent parameters stay unset.
func userFilter(c *gin.Context, requesterID uint) (repository.UserFilter, error) {
	f := repository.UserFilter{
		RequesterID:          requesterID,
		CountryIsoCode:       strings.ToUpper(c.Query("country")),
		LanguageLearningCode: c.Query("languageLearning"),
		LanguageSpeakingCode: c.Query("languageSpeaking"),
	}

	if v := c.Query("sex"); v != "" {
		sex := model.Sex(v)
		if !sex.Valid() {
			return f, util.NewValidationError("unknown sex: " + v)
		}
		f.Sex = &sex
	}

	var err error
	if f.AgeMin, err = util.ParseOptionalInt(c.Query("ageMin")); err != nil {
		return f, err
	}
	if f.AgeMax, err = util.ParseOptionalInt(c.Query("ageMax")); err != nil {
		return f, err
	}
	if f.AgeMin != nil && f.AgeMax != nil && *f.AgeMin > *f.AgeMax {
		return f, util.NewValidationError("ageMin is greater than ageMax")
	}

	if v := c.Query("cityId"); v != "" {
		id, err := util.ParseID(v)
		if err != nil {
			return f, err
		}
		f.CityID = &id
	}
	return f, nil
}

func friendFilter(c *gin.Context, requesterID uint) (repository.FriendFilter, error) {
	base, err := userFilter(c, requesterID)
	if err != nil {
		return repository.FriendFilter{}, err
	}
	f := repository.FriendFilter{UserFilter: base}

	if v := c.Query("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			status, err := model.ParseFriendshipStatus(strings.TrimSpace(part))
			if err != nil {
				return f, util.WrapValidationError("unknown friendship status", err)
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	if f.Owned, err = util.ParseOptionalBool(c.Query("owned")); err != nil {
		return f, err
	}
	return f, nil
}
