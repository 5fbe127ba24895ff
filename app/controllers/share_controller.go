package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleGetShare is the public read surface of a shared separation.
func (a *API) HandleGetShare(c *fiber.Ctx) error {
	rec, err := a.Shares.Get(c.UserContext(), c.Params("shareId"))
	if err != nil {
		return writeProblem(c, err, nil)
	}
	if a.Views != nil {
		if err := a.Views.AddShareView(c.UserContext(), rec.ID); err != nil {
			log.Warnf("[Share] count view for %s: %v", rec.ShareID, err)
		}
	}
	return c.JSON(rec)
}
