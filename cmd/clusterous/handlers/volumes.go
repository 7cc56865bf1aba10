package handlers

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// ListVolumes prints the shared volumes left behind by destroyed clusters.
func ListVolumes(ctx context.Context, g Global) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	vols, err := a.ctrl.ListVolumes(ctx)
	if err != nil {
		return err
	}
	if len(vols) == 0 {
		fmt.Fprintln(stdout, "No shared volumes left behind")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(statusDimStyle).
		BorderColumn(false).
		Headers("ID", "SIZE", "ZONE", "CLUSTER").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return statusSectionStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, v := range vols {
		t.Row(v.ID, fmt.Sprintf("%d GB", v.SizeGB), v.Zone, v.Cluster)
	}
	fmt.Fprintln(stdout, t.Render())
	return nil
}

// RemoveVolume deletes a shared volume left behind by a destroyed cluster.
func RemoveVolume(ctx context.Context, g Global, id string, confirmed bool) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	err = confirmOrSkip(confirmed,
		fmt.Sprintf("This will delete the volume %s.", id),
		"All data on it will be lost. Continue?")
	if err != nil {
		return err
	}
	if err := a.ctrl.DeleteVolume(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Volume %s deleted\n", id)
	return nil
}
