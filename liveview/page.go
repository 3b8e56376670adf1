package liveview

// the page is embedded as a string so the binary needs no assets
const page = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <meta charset="UTF-8">
    <title>reCAPTCHA Buster live view</title>
    <style>
        body { margin: 0; font-family: sans-serif; }
        #status { padding: 4px 8px; background: #eee; font-size: 0.9em; }
        canvas { width: 100vw; height: calc(100vh - 4em); display: block; }
        input { width: 100vw; box-sizing: border-box; font-size: 1em; }
    </style>
</head>
<body>
    <div id="status">connecting...</div>
    <canvas tabindex="1" oncontextmenu="return false;"></canvas>
    <input id="insert" type="text" placeholder="Type text to insert into the page, ENTER to send"/>
    <script>
      const target = new URLSearchParams(window.location.search).get("id") || "";
      const status = document.getElementById("status");
      const canvas = document.querySelector("canvas");
      const ctx = canvas.getContext("2d");
      const insert = document.getElementById("insert");

      let nextId = 0;
      const ws = new WebSocket((window.location.protocol === "https:" ? "wss://" : "ws://") + window.location.host + "/ws/" + target);
      const send = (method, params) => ws.send(JSON.stringify({ id: nextId++, method, params }));

      const resize = () => {
        const { width, height } = canvas.getBoundingClientRect();
        canvas.width = Math.floor(width);
        canvas.height = Math.floor(height);
        send("Emulation.setDeviceMetricsOverride", {
          width: canvas.width, height: canvas.height, deviceScaleFactor: 1, mobile: false,
        });
      };

      ws.onopen = () => {
        status.innerText = "watching " + target;
        send("Page.startScreencast", { format: "jpeg", quality: 80 });
        resize();
      };
      ws.onmessage = (e) => {
        const data = JSON.parse(e.data);
        if (data.method !== "Page.screencastFrame") {
          return;
        }
        const img = new Image();
        img.onload = () => ctx.drawImage(img, 0, 0);
        img.src = "data:image/jpeg;base64," + data.params.data;
        send("Page.screencastFrameAck", { sessionId: data.params.sessionId });
      };
      ws.onclose = () => {
        status.innerText = "connection closed";
      };

      const mouseTypes = { mousedown: "mousePressed", mouseup: "mouseReleased", wheel: "mouseWheel" };
      const mouseButtons = { 0: "left", 1: "middle", 2: "right" };
      const mouse = (e) => {
        const params = {
          type: mouseTypes[e.type],
          x: e.offsetX,
          y: e.offsetY,
          button: e.type === "wheel" ? "none" : mouseButtons[e.button],
          clickCount: 1,
        };
        if (e.type === "wheel") {
          params.deltaX = e.deltaX;
          params.deltaY = e.deltaY;
          e.preventDefault();
        }
        send("Input.dispatchMouseEvent", params);
      };
      for (const type of Object.keys(mouseTypes)) {
        canvas.addEventListener(type, mouse, true);
      }

      const key = (e) => {
        e.preventDefault();
        send("Input.dispatchKeyEvent", {
          type: e.type === "keydown" ? "keyDown" : "keyUp",
          text: e.type === "keydown" && e.key.length === 1 ? e.key : undefined,
          code: e.code,
          key: e.key,
          windowsVirtualKeyCode: e.keyCode,
          nativeVirtualKeyCode: e.keyCode,
        });
      };
      canvas.addEventListener("keydown", key, true);
      canvas.addEventListener("keyup", key, true);

      insert.addEventListener("keydown", (e) => {
        if (e.key === "Enter") {
          send("Input.insertText", { text: e.target.value });
          e.target.value = "";
        }
      });
      window.addEventListener("resize", resize);
    </script>
</body>
</html>`
