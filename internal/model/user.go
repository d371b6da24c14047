package model

import (
	"time"

	"gorm.io/gorm"
)

type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexOther  Sex = "other"
)

func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale, SexOther:
		return true
	}
	return false
}

type User struct {
	BaseModel
	Login        string         `gorm:"size:50;uniqueIndex;not null" json:"login"`
	Name         string         `gorm:"size:100;not null" json:"name"`
	Sex          Sex            `gorm:"size:10;index" json:"sex"`
	BirthDate    time.Time      `gorm:"index" json:"birthDate"`
	CityID       *uint          `gorm:"index" json:"cityId"`
	City         *City          `gorm:"foreignKey:CityID" json:"city,omitempty"`
	Introduction string         `gorm:"type:text" json:"introduction"`
	LastActive   time.Time      `gorm:"index" json:"lastActive"`
	Photos       []UserPhoto    `gorm:"foreignKey:UserID" json:"photos,omitempty"`
	Languages    []UserLanguage `gorm:"foreignKey:UserID" json:"languages,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (User) KeyFields() []string {
	return []string{"id"}
}

// MainPhotoURL returns the url of the photo flagged as main, if Photos was loaded.
func (u *User) MainPhotoURL() string {
	for _, p := range u.Photos {
		if p.IsMain {
			return p.URL
		}
	}
	return ""
}

// Age in full years at now.
func (u *User) Age(now time.Time) int {
	if u.BirthDate.IsZero() {
		return 0
	}
	age := now.Year() - u.BirthDate.Year()
	if now.Month() < u.BirthDate.Month() || (now.Month() == u.BirthDate.Month() && now.Day() < u.BirthDate.Day()) {
		age--
	}
	return age
}

type UserPhoto struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	URL       string    `gorm:"size:255;not null" json:"url"`
	ObjectKey string    `gorm:"size:255" json:"-"`
	IsMain    bool      `gorm:"default:false" json:"isMain"`
	CreatedAt time.Time `json:"createdAt"`
}

func (UserPhoto) TableName() string {
	return "user_photos"
}

func (UserPhoto) KeyFields() []string {
	return []string{"id"}
}

func (p *UserPhoto) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = GenerateUUID()
	}
	return nil
}

type Country struct {
	IsoCode string `gorm:"primaryKey;size:2" json:"isoCode"`
	Name    string `gorm:"size:100;not null" json:"name"`
}

func (Country) TableName() string {
	return "countries"
}

func (Country) KeyFields() []string {
	return []string{"iso_code"}
}

type City struct {
	ID             uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string   `gorm:"size:100;not null;index" json:"name"`
	CountryIsoCode string   `gorm:"size:2;index;not null" json:"countryIsoCode"`
	Country        *Country `gorm:"foreignKey:CountryIsoCode;references:IsoCode" json:"country,omitempty"`
}

func (City) TableName() string {
	return "cities"
}

func (City) KeyFields() []string {
	return []string{"id"}
}

type Language struct {
	Code string `gorm:"primaryKey;size:5" json:"code"`
	Name string `gorm:"size:100;not null" json:"name"`
}

func (Language) TableName() string {
	return "languages"
}

func (Language) KeyFields() []string {
	return []string{"code"}
}

// UserLanguage is a language a user speaks, or learns when Learning is set.
type UserLanguage struct {
	UserID       uint      `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	LanguageCode string    `gorm:"primaryKey;size:5" json:"languageCode"`
	Learning     bool      `gorm:"primaryKey;autoIncrement:false" json:"learning"`
	Level        int       `gorm:"default:0" json:"level"`
	Language     *Language `gorm:"foreignKey:LanguageCode;references:Code" json:"language,omitempty"`
}

func (UserLanguage) TableName() string {
	return "user_languages"
}

func (UserLanguage) KeyFields() []string {
	return []string{"user_id", "language_code", "learning"}
}
