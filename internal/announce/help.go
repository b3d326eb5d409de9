package announce

const usageText = `📢 Announcer
Send me a message to make an announcement.

Configuration keys (one per line, any order):
  channel: name       - fuzzy search for the target channel
  color: red/0xHEX    - set the announcement color
  mention: role, ...  - ping roles by name (comma separated)
  everyone: true      - ping everyone
  preview: true       - see it before sending (shows target)
  poll: true          - add vote reactions
  schedule: 10m       - deferred posting (m/h/d, HH:MM, or YYYY-MM-DD HH:MM:SS)
  button: Label | URL - add a link button

Commands:
  help           - this message
  template       - an example announcement
  list           - pending scheduled announcements
  cancel: <id>   - cancel a scheduled announcement
  edit: <id>     - replace a scheduled announcement (body on the next lines)

Every other line becomes the announcement text.`

const templateText = `channel: general
color: blue
mention: Gamers, Updates
button: Website | https://example.com
poll: true
Big news coming soon!`
